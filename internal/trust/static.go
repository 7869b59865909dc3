// Package trust holds the set of signer identities a consumer accepts.
package trust

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ibs-source/pricefeed-consumer/internal/linkage"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

// Anchor is one trusted signer. A zero ExpiresAt never expires.
type Anchor struct {
	Scheme    protocol.Scheme
	PublicKey [protocol.PublicKeySize]byte
	Address   [linkage.AddressSize]byte
	ExpiresAt time.Time
}

func (a Anchor) expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// ParseAnchor decodes a hex signer identity for scheme: a 32 byte ed25519
// public key or a 20 byte secp256k1 address. A leading 0x is accepted.
func ParseAnchor(scheme protocol.Scheme, s string, expiresAt time.Time) (Anchor, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return Anchor{}, fmt.Errorf("trusted signer: %w", err)
	}
	a := Anchor{Scheme: scheme, ExpiresAt: expiresAt}
	switch scheme {
	case protocol.SchemeEd25519:
		if len(b) != protocol.PublicKeySize {
			return Anchor{}, fmt.Errorf("trusted signer: ed25519 key is %d bytes, want %d", len(b), protocol.PublicKeySize)
		}
		copy(a.PublicKey[:], b)
	case protocol.SchemeECDSA:
		if len(b) != linkage.AddressSize {
			return Anchor{}, fmt.Errorf("trusted signer: address is %d bytes, want %d", len(b), linkage.AddressSize)
		}
		copy(a.Address[:], b)
	default:
		return Anchor{}, fmt.Errorf("trusted signer: unsupported scheme %s", scheme)
	}
	return a, nil
}

// Static is an in-memory TrustStore.
type Static struct {
	mu      sync.RWMutex
	anchors []Anchor
	now     func() time.Time
}

var _ linkage.TrustStore = (*Static)(nil)

// NewStatic returns a store trusting anchors.
func NewStatic(anchors ...Anchor) *Static {
	return &Static{anchors: append([]Anchor(nil), anchors...), now: time.Now}
}

// WithClock replaces the clock used for expiry checks.
func (s *Static) WithClock(now func() time.Time) *Static {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Add appends an anchor.
func (s *Static) Add(a Anchor) {
	s.mu.Lock()
	s.anchors = append(s.anchors, a)
	s.mu.Unlock()
}

// Len returns the number of anchors, expired ones included.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.anchors)
}

// TrustedKey reports whether key is an unexpired ed25519 anchor.
func (s *Static) TrustedKey(key [protocol.PublicKeySize]byte) (bool, error) {
	return s.match(func(a Anchor) bool {
		return a.Scheme == protocol.SchemeEd25519 && a.PublicKey == key
	}), nil
}

// TrustedAddress reports whether addr is an unexpired secp256k1 anchor.
func (s *Static) TrustedAddress(addr [linkage.AddressSize]byte) (bool, error) {
	return s.match(func(a Anchor) bool {
		return a.Scheme == protocol.SchemeECDSA && a.Address == addr
	}), nil
}

func (s *Static) match(pred func(Anchor) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	for _, a := range s.anchors {
		if pred(a) && !a.expired(now) {
			return true
		}
	}
	return false
}
