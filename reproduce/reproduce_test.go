package reproduce

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := Settings{Seed: 0xdeadbeefcafef00d}
	decoded, err := Decode(s.Encode())
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestEncodeDecode_ZeroSeedRoundTrips(t *testing.T) {
	s := Settings{Seed: 0}
	decoded, err := Decode(s.Encode())
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestDecode_RejectsMalformedBase64(t *testing.T) {
	_, err := Decode("not valid base64 !!!")
	assert.True(t, errors.Is(err, ErrInvalidReproduceSettings))
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, err := Decode(base64.RawURLEncoding.EncodeToString([]byte("not json")))
	assert.True(t, errors.Is(err, ErrInvalidReproduceSettings))
}

func TestDecode_RejectsIncompatibleVersion(t *testing.T) {
	_, err := Decode(base64.RawURLEncoding.EncodeToString([]byte(`{"version":99,"seed":1}`)))
	assert.True(t, errors.Is(err, ErrInvalidReproduceSettings))
}
