package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd25519Envelope_RoundTrip(t *testing.T) {
	payload, err := Encode(referencePayload())
	require.NoError(t, err)

	in := &Ed25519Envelope{Payload: payload}
	for i := range in.Signature {
		in.Signature[i] = byte(i)
	}
	for i := range in.PublicKey {
		in.PublicKey[i] = byte(0xa0 + i)
	}

	b, err := in.Bytes()
	require.NoError(t, err)
	require.Len(t, b, Ed25519HeaderSize+len(payload))
	assert.Equal(t, []byte{0xb9, 0x01, 0x1a, 0x82}, b[:MagicSize])

	out, err := ParseEd25519Envelope(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, payload, b[out.PayloadOffset():])
}

func TestECDSAEnvelope_RoundTrip(t *testing.T) {
	payload, err := Encode(referencePayload())
	require.NoError(t, err)

	in := &ECDSAEnvelope{RecoveryID: 1, Payload: payload}
	in.Signature[0], in.Signature[63] = 0x11, 0x22

	b, err := in.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xe4, 0xbd, 0x47, 0x4d}, b[:MagicSize])

	out, err := ParseECDSAEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, payload, b[out.PayloadOffset():])
}

func TestParseEnvelope_Failures(t *testing.T) {
	good, err := (&Ed25519Envelope{Payload: []byte{1, 2, 3}}).Bytes()
	require.NoError(t, err)

	tests := []struct {
		name  string
		parse func([]byte) error
		data  []byte
	}{
		{"short", parseEd, good[:10]},
		{"wrong magic", parseECDSA, good},
		{"length too long", parseEd, good[:len(good)-1]},
		{"trailing bytes", parseEd, append(append([]byte(nil), good...), 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.parse(tt.data), ErrInvalidEnvelope)
		})
	}
}

func parseEd(b []byte) error {
	_, err := ParseEd25519Envelope(b)
	return err
}

func parseECDSA(b []byte) error {
	_, err := ParseECDSAEnvelope(b)
	return err
}

func TestParseScheme(t *testing.T) {
	s, err := ParseScheme("ed25519")
	require.NoError(t, err)
	assert.Equal(t, SchemeEd25519, s)

	s, err = ParseScheme("secp256k1")
	require.NoError(t, err)
	assert.Equal(t, SchemeECDSA, s)

	_, err = ParseScheme("rsa")
	assert.Error(t, err)
}
