package principal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	p, err := FromBytes(raw)
	require.NoError(t, err)

	encoded := p.String()
	decoded, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestAnonymous(t *testing.T) {
	require.True(t, Anonymous.IsAnonymous())
	p, err := FromBytes(make([]byte, 20))
	require.NoError(t, err)
	require.True(t, p.IsAnonymous())
}

func TestParseRejectsWrongPrefix(t *testing.T) {
	_, err := Parse("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	require.Error(t, err)
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}
