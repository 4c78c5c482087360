package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/automoto/framesync/shared/messages"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/protocol"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/esync"
	"go.uber.org/zap"
)

// peerConn is one joined websocket connection. Everything sent to it goes
// through out and a single writer goroutine.
type peerConn struct {
	id     netconfig.PeerID
	name   string
	avatar esync.NetworkId // Set by the game loop on join
	conn   *websocket.Conn
	logger *zap.Logger

	out       chan []byte
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{} // Closed when the writer exits
}

func newPeerConn(id netconfig.PeerID, name string, conn *websocket.Conn, outbox int, logger *zap.Logger) *peerConn {
	return &peerConn{
		id:     id,
		name:   name,
		conn:   conn,
		logger: logger.With(zap.Uint32("peer", uint32(id))),
		out:    make(chan []byte, outbox),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// enqueue queues msg without blocking. A full queue drops frames; a control
// message that does not fit closes the connection, since the peer would
// otherwise miss a spawn or despawn.
func (p *peerConn) enqueue(msg []byte, frame bool) bool {
	select {
	case <-p.stop:
		return false
	default:
	}
	select {
	case p.out <- msg:
		return true
	default:
	}
	if !frame {
		p.logger.Warn("outbox full, closing slow peer")
		_ = p.close("too slow")
	}
	return false
}

func (p *peerConn) sendControl(msg any) {
	payload, err := protocol.EncodeControl(msg)
	if err != nil {
		p.logger.Error("failed to encode control message", zap.Error(err))
		return
	}
	p.enqueue(payload, false)
}

// reject sends JoinRejected and closes the connection.
func (p *peerConn) reject(reason string) error {
	p.sendControl(messages.JoinRejected{Reason: reason})
	return p.close(reason)
}

// close stops the writer, which flushes what is queued and then closes the
// websocket with reason.
func (p *peerConn) close(reason string) error {
	p.closeOnce.Do(func() {
		p.logger.Debug("closing", zap.String("reason", reason))
		close(p.stop)
	})
	return nil
}

func (p *peerConn) writeLoop(ctx context.Context, s *Server) {
	defer close(p.done)
	write := func(msg []byte) error {
		wctx, cancel := context.WithTimeout(ctx, s.opts.Net.WriteTimeout)
		defer cancel()
		return p.conn.Write(wctx, websocket.MessageBinary, msg)
	}
	for {
		select {
		case msg := <-p.out:
			if err := write(msg); err != nil {
				p.logger.Debug("write failed", zap.Error(err))
				_ = p.conn.CloseNow()
				return
			}
		case <-p.stop:
			for _, msg := range drainChan(p.out) {
				if write(msg) != nil {
					break
				}
			}
			_ = p.conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ctx.Done():
			_ = p.conn.CloseNow()
			return
		}
	}
}

// ServeWS upgrades the request, runs the join handshake and then reads the
// peer's messages until it disconnects.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	if s.opts.Net.ReadLimit > 0 {
		conn.SetReadLimit(s.opts.Net.ReadLimit)
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	req, err := s.readJoin(ctx, conn)
	if err != nil {
		s.logger.Debug("join failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		_ = conn.Close(websocket.StatusPolicyViolation, "expected join request")
		return
	}

	id := netconfig.PeerID(s.nextPeer.Add(1))
	p := newPeerConn(id, req.PlayerName, conn, s.opts.Net.OutboxSize, s.logger)
	go p.writeLoop(ctx, s)

	if reason := s.admit(req); reason != "" {
		s.logger.Info("rejecting peer",
			zap.String("name", req.PlayerName),
			zap.String("version", req.Version),
			zap.String("reason", reason))
		_ = p.reject(reason)
		<-p.done
		return
	}
	if !s.submit(command{kind: cmdJoin, peer: p}) {
		_ = p.reject("server shutting down")
		<-p.done
		return
	}

	err = s.readLoop(ctx, p)
	_ = p.close("disconnected")
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Debug("read loop ended", zap.Error(err))
	}
	s.submit(command{kind: cmdLeave, peer: p})
	<-p.done
}

func (s *Server) readJoin(ctx context.Context, conn *websocket.Conn) (messages.JoinRequest, error) {
	if s.opts.Net.JoinTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Net.JoinTimeout)
		defer cancel()
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		return messages.JoinRequest{}, err
	}
	ch, body, err := protocol.Split(data)
	if err != nil {
		return messages.JoinRequest{}, err
	}
	if ch != protocol.ChannelControl {
		return messages.JoinRequest{}, fmt.Errorf("unexpected channel %d", ch)
	}
	env, err := protocol.DecodeControl(body)
	if err != nil {
		return messages.JoinRequest{}, err
	}
	if env.JoinRequest == nil {
		return messages.JoinRequest{}, errors.New("first message is not a join request")
	}
	return *env.JoinRequest, nil
}

// admit returns why req cannot join, or "" if it can.
func (s *Server) admit(req messages.JoinRequest) string {
	if v := s.opts.Net.Version; v != "" && req.Version != v {
		return fmt.Sprintf("version mismatch: server %s, client %s", v, req.Version)
	}
	if m := s.opts.Net.MaxPeers; m > 0 && s.peers.Count() >= m {
		return "server full"
	}
	return ""
}

// readLoop relays frames to the other peers and queues everything for the
// game loop. Frames for entities the peer does not write go nowhere.
func (s *Server) readLoop(ctx context.Context, p *peerConn) error {
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			return err
		}
		s.peers.Touch(p.id)
		ch, body, err := protocol.Split(data)
		if err != nil {
			continue
		}
		if ch == protocol.ChannelFrame {
			if !s.mayWrite(p, body) {
				continue
			}
			s.relay(p, data)
		}
		if !s.submit(command{kind: cmdMessage, peer: p, msg: data}) {
			return context.Canceled
		}
	}
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
