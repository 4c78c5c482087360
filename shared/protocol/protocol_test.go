package protocol

import (
	"testing"

	"github.com/automoto/framesync/shared/bitstream"
	"github.com/automoto/framesync/shared/messages"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderLayout(t *testing.T) {
	w := bitstream.NewWriter(8)
	WriteHeader(w, Header{FrameID: 59, EntityID: 0x80000001})
	w.WriteBits(0b101, 3)

	assert.Equal(t, HeaderBits+3, w.Len())
	// 111011 then the entity id starting at bit 6.
	assert.Equal(t, byte(0b11101110), w.Bytes()[0])

	h, r, err := TryDecodeHeader(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, netconfig.FrameID(59), h.FrameID)
	assert.Equal(t, uint32(0x80000001), h.EntityID)
	assert.Equal(t, uint64(0b101), r.ReadBits(3))
	assert.NoError(t, r.Err())
}

func TestTryDecodeHeaderRejectsShortAndOutOfRange(t *testing.T) {
	_, _, err := TryDecodeHeader([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrShortHeader)

	w := bitstream.NewWriter(8)
	w.WriteBits(63, netconfig.FrameIDBits)
	w.WriteBits(7, netconfig.EntityIDBits)
	_, _, err = TryDecodeHeader(w.Bytes())
	assert.ErrorIs(t, err, ErrBadFrameID)
}

func TestControlEnvelopeCarriesOneMessage(t *testing.T) {
	raw, err := EncodeControl(messages.AuthorityChange{
		NetworkID: 9,
		Owner:     3,
		Authority: netconfig.AuthorityOwner,
	})
	require.NoError(t, err)

	ch, body, err := Split(raw)
	require.NoError(t, err)
	assert.Equal(t, ChannelControl, ch)

	env, err := DecodeControl(body)
	require.NoError(t, err)
	require.NotNil(t, env.AuthorityChange)
	assert.Nil(t, env.FullState)
	assert.Nil(t, env.JoinRequest)
	assert.Equal(t, netconfig.PeerID(3), env.AuthorityChange.Owner)
	assert.Equal(t, netconfig.AuthorityOwner, env.AuthorityChange.Authority)
}

func TestEncodeControlRejectsUnknownTypes(t *testing.T) {
	_, err := EncodeControl(struct{}{})
	assert.Error(t, err)
}

func TestSplitFrameChannel(t *testing.T) {
	msg := EncodeFrame(nil, []byte{0xAA, 0xBB})
	ch, body, err := Split(msg)
	require.NoError(t, err)
	assert.Equal(t, ChannelFrame, ch)
	assert.Equal(t, []byte{0xAA, 0xBB}, body)

	_, _, err = Split(nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, _, err = Split([]byte{0x7F})
	assert.Error(t, err)
}
