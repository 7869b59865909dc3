package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidEnvelope is wrapped by every envelope parse failure.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Scheme selects how an envelope is signed and how its verification is
// linked to a sibling verifier instruction.
type Scheme uint8

// Supported schemes.
const (
	// SchemeEd25519 signs with a fixed ed25519 key carried in the envelope.
	SchemeEd25519 Scheme = iota + 1
	// SchemeECDSA signs with a recoverable secp256k1 signature; the signer
	// is identified by its derived 20-byte address.
	SchemeECDSA
)

func (s Scheme) String() string {
	switch s {
	case SchemeEd25519:
		return "ed25519"
	case SchemeECDSA:
		return "ecdsa"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// ParseScheme parses a scheme name.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "ed25519":
		return SchemeEd25519, nil
	case "ecdsa", "secp256k1":
		return SchemeECDSA, nil
	default:
		return 0, fmt.Errorf("unknown signature scheme %q", s)
	}
}

// Envelope magics, little-endian on the wire.
const (
	Ed25519Magic uint32 = 0x821a01b9
	ECDSAMagic   uint32 = 0x4d47bde4
)

// Field sizes shared by both envelope layouts.
const (
	MagicSize          = 4
	SignatureSize      = 64
	PublicKeySize      = 32
	RecoveryIDSize     = 1
	PayloadLengthSize  = 2
	Ed25519HeaderSize  = MagicSize + SignatureSize + PublicKeySize + PayloadLengthSize
	ECDSAHeaderSize    = MagicSize + SignatureSize + RecoveryIDSize + PayloadLengthSize
	Ed25519SigOffset   = MagicSize
	Ed25519KeyOffset   = MagicSize + SignatureSize
	ECDSASigOffset     = MagicSize
	RecoverableSigSize = SignatureSize + RecoveryIDSize
	maxEnvelopePayload = math.MaxUint16
)

// Ed25519Envelope is a payload signed by an ed25519 key:
// magic u32 | signature [64] | public_key [32] | payload_len u16 | payload.
type Ed25519Envelope struct {
	Signature [SignatureSize]byte
	PublicKey [PublicKeySize]byte
	Payload   []byte
}

// PayloadOffset is the offset of the payload within the encoded envelope.
func (e *Ed25519Envelope) PayloadOffset() int {
	return Ed25519HeaderSize
}

// Bytes encodes the envelope.
func (e *Ed25519Envelope) Bytes() ([]byte, error) {
	if len(e.Payload) > maxEnvelopePayload {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrInvalidEnvelope, len(e.Payload))
	}
	out := make([]byte, 0, Ed25519HeaderSize+len(e.Payload))
	out = binary.LittleEndian.AppendUint32(out, Ed25519Magic)
	out = append(out, e.Signature[:]...)
	out = append(out, e.PublicKey[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(e.Payload)))
	return append(out, e.Payload...), nil
}

// ParseEd25519Envelope parses b. The returned payload aliases b.
func ParseEd25519Envelope(b []byte) (*Ed25519Envelope, error) {
	payload, err := splitEnvelope(b, Ed25519Magic, Ed25519HeaderSize)
	if err != nil {
		return nil, err
	}
	e := &Ed25519Envelope{Payload: payload}
	copy(e.Signature[:], b[Ed25519SigOffset:])
	copy(e.PublicKey[:], b[Ed25519KeyOffset:])
	return e, nil
}

// ECDSAEnvelope is a payload signed by a recoverable secp256k1 signature:
// magic u32 | signature [64] | recovery_id u8 | payload_len u16 | payload.
type ECDSAEnvelope struct {
	Signature  [SignatureSize]byte
	RecoveryID uint8
	Payload    []byte
}

// PayloadOffset is the offset of the payload within the encoded envelope.
func (e *ECDSAEnvelope) PayloadOffset() int {
	return ECDSAHeaderSize
}

// Bytes encodes the envelope.
func (e *ECDSAEnvelope) Bytes() ([]byte, error) {
	if len(e.Payload) > maxEnvelopePayload {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrInvalidEnvelope, len(e.Payload))
	}
	out := make([]byte, 0, ECDSAHeaderSize+len(e.Payload))
	out = binary.LittleEndian.AppendUint32(out, ECDSAMagic)
	out = append(out, e.Signature[:]...)
	out = append(out, e.RecoveryID)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(e.Payload)))
	return append(out, e.Payload...), nil
}

// ParseECDSAEnvelope parses b. The returned payload aliases b.
func ParseECDSAEnvelope(b []byte) (*ECDSAEnvelope, error) {
	payload, err := splitEnvelope(b, ECDSAMagic, ECDSAHeaderSize)
	if err != nil {
		return nil, err
	}
	e := &ECDSAEnvelope{Payload: payload, RecoveryID: b[ECDSASigOffset+SignatureSize]}
	copy(e.Signature[:], b[ECDSASigOffset:])
	return e, nil
}

func splitEnvelope(b []byte, magic uint32, headerSize int) ([]byte, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrInvalidEnvelope, len(b), headerSize)
	}
	if got := binary.LittleEndian.Uint32(b); got != magic {
		return nil, fmt.Errorf("%w: magic %#08x, want %#08x", ErrInvalidEnvelope, got, magic)
	}
	n := int(binary.LittleEndian.Uint16(b[headerSize-PayloadLengthSize:]))
	if len(b)-headerSize != n {
		return nil, fmt.Errorf("%w: declared payload of %d bytes, have %d", ErrInvalidEnvelope, n, len(b)-headerSize)
	}
	return b[headerSize:], nil
}
