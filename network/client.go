package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/automoto/framesync/shared/messages"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/protocol"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/esync"
	"go.uber.org/zap"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoinedGame
	StateError
)

const inboxSize = 256

type ClientConfig struct {
	Version      string
	PlayerName   string
	ReadLimit    int64
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Client is a peer's websocket connection to a host. It implements Transport;
// the host routes everything a peer sends, so target and recipients are
// ignored.
// All shared fields are protected by mu (the read loop runs on its own goroutine).
type Client struct {
	mu sync.RWMutex

	cfg    ClientConfig
	logger *zap.Logger

	state     ClientState
	lastError error
	accepted  messages.JoinAccepted
	conn      *websocket.Conn
	cancel    context.CancelFunc

	inbox chan []byte
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: cfg.Logger.Named("client"),
		state:  StateDisconnected,
		inbox:  make(chan []byte, inboxSize),
	}
}

// Connect dials address and runs the join handshake. It returns once the host
// accepted or rejected the join, or ctx ends.
func (c *Client) Connect(ctx context.Context, address string) (messages.JoinAccepted, error) {
	c.setState(StateConnecting)

	conn, _, err := websocket.Dial(ctx, address, nil)
	if err != nil {
		err = fmt.Errorf("connection failed: %w", err)
		c.setError(err)
		return messages.JoinAccepted{}, err
	}
	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}
	c.logger.Info("connected to server", zap.String("address", address))
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	payload, err := protocol.EncodeControl(messages.JoinRequest{
		Version:    c.cfg.Version,
		PlayerName: c.cfg.PlayerName,
	})
	if err != nil {
		return messages.JoinAccepted{}, c.fail(fmt.Errorf("failed to serialize join request: %w", err))
	}
	if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
		return messages.JoinAccepted{}, c.fail(fmt.Errorf("failed to send join request: %w", err))
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return messages.JoinAccepted{}, c.fail(fmt.Errorf("waiting for join: %w", err))
		}
		ch, body, err := protocol.Split(data)
		if err != nil || ch != protocol.ChannelControl {
			continue
		}
		env, err := protocol.DecodeControl(body)
		if err != nil {
			return messages.JoinAccepted{}, c.fail(err)
		}
		switch {
		case env.JoinAccepted != nil:
			msg := *env.JoinAccepted
			c.logger.Info("join accepted",
				zap.Uint32("peer", uint32(msg.Peer)),
				zap.Uint("networkId", uint(msg.NetworkID)),
				zap.String("server", msg.ServerName),
				zap.Int("tickRate", msg.TickRate))

			readCtx, cancel := context.WithCancel(context.Background())
			c.mu.Lock()
			c.accepted = msg
			c.state = StateJoinedGame
			c.cancel = cancel
			c.mu.Unlock()
			go c.readLoop(readCtx, conn)
			return msg, nil
		case env.JoinRejected != nil:
			c.logger.Info("join rejected", zap.String("reason", env.JoinRejected.Reason))
			return messages.JoinAccepted{}, c.fail(fmt.Errorf("join rejected: %s", env.JoinRejected.Reason))
		}
	}
}

// readLoop queues everything the host sends. Frames are dropped when the inbox
// is full; control messages wait for room.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			if c.state != StateError && c.state != StateDisconnected {
				c.state = StateDisconnected
				if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					c.lastError = err
				}
			}
			c.conn = nil
			c.mu.Unlock()
			c.logger.Info("disconnected", zap.Error(err))
			return
		}
		if len(data) > 0 && protocol.Channel(data[0]) == protocol.ChannelFrame {
			select {
			case c.inbox <- data:
			default:
				c.logger.Debug("inbox full, dropping frame")
			}
			continue
		}
		select {
		case c.inbox <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.state = StateDisconnected
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) Peer() netconfig.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accepted.Peer
}

func (c *Client) NetworkID() esync.NetworkId {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accepted.NetworkID
}

// Ready reports whether the join completed and the connection is up.
func (c *Client) Ready() bool {
	return c.State() == StateJoinedGame
}

func (c *Client) Send(payload []byte, _ int, _ Target, _ []netconfig.PeerID) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageBinary, payload)
}

// Drain returns all queued messages from the host, non-blocking.
func (c *Client) Drain() [][]byte {
	return drainChan(c.inbox)
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.lastError = nil
	c.mu.Unlock()
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}

// fail records err and closes the connection.
func (c *Client) fail(err error) error {
	c.setError(err)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.CloseNow()
	}
	return err
}

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
