package protocol

import (
	"errors"
	"fmt"

	"github.com/automoto/framesync/shared/messages"
	"github.com/hashicorp/go-msgpack/v2/codec"
)

// Channel tags the first byte of every transport message so frame datagrams
// and control envelopes can share one connection.
type Channel byte

const (
	ChannelFrame   Channel = 0x01
	ChannelControl Channel = 0x02
)

var ErrEmptyMessage = errors.New("protocol: empty message")

// Envelope carries exactly one control message.
type Envelope struct {
	JoinRequest     *messages.JoinRequest     `codec:"join,omitempty"`
	JoinAccepted    *messages.JoinAccepted    `codec:"accepted,omitempty"`
	JoinRejected    *messages.JoinRejected    `codec:"rejected,omitempty"`
	FullState       *messages.FullState       `codec:"fullState,omitempty"`
	AuthorityChange *messages.AuthorityChange `codec:"authority,omitempty"`
	Despawn         *messages.Despawn         `codec:"despawn,omitempty"`
}

var msgpackHandle = &codec.MsgpackHandle{}

// Wrap places a control message in an envelope.
func Wrap(msg any) (Envelope, error) {
	var env Envelope
	switch m := msg.(type) {
	case messages.JoinRequest:
		env.JoinRequest = &m
	case messages.JoinAccepted:
		env.JoinAccepted = &m
	case messages.JoinRejected:
		env.JoinRejected = &m
	case messages.FullState:
		env.FullState = &m
	case messages.AuthorityChange:
		env.AuthorityChange = &m
	case messages.Despawn:
		env.Despawn = &m
	default:
		return env, fmt.Errorf("protocol: unsupported control message %T", msg)
	}
	return env, nil
}

// EncodeControl serializes a control message with its channel tag.
func EncodeControl(msg any) ([]byte, error) {
	env, err := Wrap(msg)
	if err != nil {
		return nil, err
	}
	var body []byte
	if err := codec.NewEncoderBytes(&body, msgpackHandle).Encode(env); err != nil {
		return nil, fmt.Errorf("encode control: %w", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(ChannelControl))
	return append(out, body...), nil
}

// EncodeFrame prefixes a frame datagram with its channel tag.
func EncodeFrame(dst, datagram []byte) []byte {
	dst = append(dst[:0], byte(ChannelFrame))
	return append(dst, datagram...)
}

// Split returns the channel and body of a transport message.
func Split(msg []byte) (Channel, []byte, error) {
	if len(msg) == 0 {
		return 0, nil, ErrEmptyMessage
	}
	ch := Channel(msg[0])
	if ch != ChannelFrame && ch != ChannelControl {
		return 0, nil, fmt.Errorf("protocol: unknown channel 0x%02x", msg[0])
	}
	return ch, msg[1:], nil
}

// DecodeControl parses a control body returned by Split.
func DecodeControl(body []byte) (Envelope, error) {
	var env Envelope
	if err := codec.NewDecoderBytes(body, msgpackHandle).Decode(&env); err != nil {
		return env, fmt.Errorf("decode control: %w", err)
	}
	return env, nil
}
