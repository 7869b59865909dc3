package trust

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

const (
	edKeyHex = "74313a6525edf99936aa1477e94c72bc5cc617b21745f5f03296f3154461f214"
	addrHex  = "b8d50f0bae75bf6e03c104903d7c3afc4a6596da"
)

func TestParseAnchor(t *testing.T) {
	tests := []struct {
		name    string
		scheme  protocol.Scheme
		in      string
		wantErr bool
	}{
		{"ed25519", protocol.SchemeEd25519, edKeyHex, false},
		{"ed25519 prefixed", protocol.SchemeEd25519, "0x" + edKeyHex, false},
		{"ecdsa", protocol.SchemeECDSA, addrHex, false},
		{"ecdsa upper", protocol.SchemeECDSA, strings.ToUpper(addrHex), false},
		{"ed25519 short", protocol.SchemeEd25519, addrHex, true},
		{"ecdsa long", protocol.SchemeECDSA, edKeyHex, true},
		{"not hex", protocol.SchemeEd25519, "zz", true},
		{"unknown scheme", protocol.Scheme(9), edKeyHex, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAnchor(tt.scheme, tt.in, time.Time{})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatic_Lookup(t *testing.T) {
	ed, err := ParseAnchor(protocol.SchemeEd25519, edKeyHex, time.Time{})
	require.NoError(t, err)
	ec, err := ParseAnchor(protocol.SchemeECDSA, addrHex, time.Time{})
	require.NoError(t, err)

	s := NewStatic(ed)
	ok, err := s.TrustedKey(ed.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.TrustedAddress(ec.Address)
	assert.False(t, ok, "address is not trusted before it is added")

	s.Add(ec)
	ok, _ = s.TrustedAddress(ec.Address)
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())

	var other [protocol.PublicKeySize]byte
	ok, _ = s.TrustedKey(other)
	assert.False(t, ok)
}

func TestStatic_Expiry(t *testing.T) {
	now := time.Date(2024, 10, 9, 13, 8, 32, 0, time.UTC)
	a, err := ParseAnchor(protocol.SchemeEd25519, edKeyHex, now.Add(time.Hour))
	require.NoError(t, err)

	clock := now
	s := NewStatic(a).WithClock(func() time.Time { return clock })

	ok, _ := s.TrustedKey(a.PublicKey)
	assert.True(t, ok)

	clock = now.Add(time.Hour)
	ok, _ = s.TrustedKey(a.PublicKey)
	assert.False(t, ok, "anchor is untrusted from its expiry on")
}
