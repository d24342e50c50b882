package section

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{Type: TypeVolume, NextOffset: 13 + 76 + 94, Size: 94}
	buf := Encode(h)
	require.Len(t, buf, HeaderSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, h.Type, got.Type)
	require.Equal(t, h.NextOffset, got.NextOffset)
	require.Equal(t, h.Size, got.Size)
}

func TestDecodeCrcMismatch(t *testing.T) {
	buf := Encode(Header{Type: TypeTable, NextOffset: 1000, Size: 500})
	buf[0] ^= 0xFF // corrupt the type tag, invalidating the CRC
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeShortInput(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	require.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(TypeNext))
	require.True(t, IsTerminal(TypeDone))
	require.False(t, IsTerminal(TypeTable))
}
