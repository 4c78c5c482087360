// Package protocol defines the datagram header shared by every synchronized
// frame and the envelope used for out-of-band control messages.
//
// A frame datagram is a flat bit stream:
//
//	[ frameId : 6 bits ][ entityId : 32 bits ][ field payload : producer-defined ]
//
// The field payload has no length prefix and no type tags. Its layout is fixed
// by the ordered list of sync components registered for the entity, which the
// writer and every reader must construct identically.
package protocol

import (
	"errors"
	"fmt"

	"github.com/automoto/framesync/shared/bitstream"
	"github.com/automoto/framesync/shared/netconfig"
)

// HeaderBits is the size of the datagram header.
const HeaderBits = netconfig.FrameIDBits + netconfig.EntityIDBits

var (
	ErrShortHeader = errors.New("protocol: payload shorter than frame header")
	ErrBadFrameID  = errors.New("protocol: frame id outside ring")
)

// Header identifies the entity and the writer's frame a datagram belongs to.
type Header struct {
	FrameID  netconfig.FrameID
	EntityID uint32
}

// WriteHeader appends the datagram header.
func WriteHeader(w *bitstream.Writer, h Header) {
	w.WriteBits(uint64(h.FrameID), netconfig.FrameIDBits)
	w.WriteBits(uint64(h.EntityID), netconfig.EntityIDBits)
}

// TryDecodeHeader parses the header of a frame datagram and returns a reader
// positioned at the start of the field payload.
func TryDecodeHeader(payload []byte) (Header, *bitstream.Reader, error) {
	if len(payload)*8 < HeaderBits {
		return Header{}, nil, ErrShortHeader
	}
	r := bitstream.NewReader(payload)
	h := Header{
		FrameID:  netconfig.FrameID(r.ReadBits(netconfig.FrameIDBits)),
		EntityID: uint32(r.ReadBits(netconfig.EntityIDBits)),
	}
	if err := r.Err(); err != nil {
		return Header{}, nil, fmt.Errorf("decode header: %w", err)
	}
	if !h.FrameID.Valid() {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrBadFrameID, int(h.FrameID))
	}
	return h, r, nil
}
