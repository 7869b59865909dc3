package linkage

import (
	"encoding/binary"
	"fmt"
)

// Ed25519OffsetsSize is the encoded size of Ed25519Offsets.
const Ed25519OffsetsSize = 14

// Ed25519Offsets locates one signature check of the ed25519 verifier: the
// signature, public key and message are byte ranges inside (possibly
// different) instructions of the transaction.
type Ed25519Offsets struct {
	SignatureOffset           uint16
	SignatureInstructionIndex uint16
	PublicKeyOffset           uint16
	PublicKeyInstructionIndex uint16
	MessageOffset             uint16
	MessageSize               uint16
	MessageInstructionIndex   uint16
}

func (o Ed25519Offsets) appendTo(b []byte) []byte {
	for _, v := range [...]uint16{
		o.SignatureOffset, o.SignatureInstructionIndex,
		o.PublicKeyOffset, o.PublicKeyInstructionIndex,
		o.MessageOffset, o.MessageSize, o.MessageInstructionIndex,
	} {
		b = binary.LittleEndian.AppendUint16(b, v)
	}
	return b
}

func parseEd25519Offsets(b []byte) Ed25519Offsets {
	u := func(i int) uint16 { return binary.LittleEndian.Uint16(b[2*i:]) }
	return Ed25519Offsets{
		SignatureOffset:           u(0),
		SignatureInstructionIndex: u(1),
		PublicKeyOffset:           u(2),
		PublicKeyInstructionIndex: u(3),
		MessageOffset:             u(4),
		MessageSize:               u(5),
		MessageInstructionIndex:   u(6),
	}
}

// EncodeEd25519Args encodes the data of an ed25519 verifier instruction:
// count u8 | padding u8 | count × Ed25519Offsets.
func EncodeEd25519Args(sigs []Ed25519Offsets) []byte {
	out := make([]byte, 0, 2+len(sigs)*Ed25519OffsetsSize)
	out = append(out, uint8(len(sigs)), 0) // #nosec G115 - callers pass a handful of slots
	for _, s := range sigs {
		out = s.appendTo(out)
	}
	return out
}

// ParseEd25519Args decodes the data of an ed25519 verifier instruction.
func ParseEd25519Args(data []byte) ([]Ed25519Offsets, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("ed25519 args: %d bytes", len(data))
	}
	n := int(data[0])
	if want := 2 + n*Ed25519OffsetsSize; len(data) != want {
		return nil, fmt.Errorf("ed25519 args: %d bytes for %d signatures, want %d", len(data), n, want)
	}
	out := make([]Ed25519Offsets, n)
	for i := range out {
		out[i] = parseEd25519Offsets(data[2+i*Ed25519OffsetsSize:])
	}
	return out, nil
}

// Secp256k1OffsetsSize is the encoded size of Secp256k1Offsets.
const Secp256k1OffsetsSize = 11

// Secp256k1Offsets locates one recoverable signature check: a 65 byte
// r||s||recovery_id signature, the 20 byte address it must recover to and
// the signed message.
type Secp256k1Offsets struct {
	SignatureOffset           uint16
	SignatureInstructionIndex uint8
	AddressOffset             uint16
	AddressInstructionIndex   uint8
	MessageOffset             uint16
	MessageSize               uint16
	MessageInstructionIndex   uint8
}

func (o Secp256k1Offsets) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, o.SignatureOffset)
	b = append(b, o.SignatureInstructionIndex)
	b = binary.LittleEndian.AppendUint16(b, o.AddressOffset)
	b = append(b, o.AddressInstructionIndex)
	b = binary.LittleEndian.AppendUint16(b, o.MessageOffset)
	b = binary.LittleEndian.AppendUint16(b, o.MessageSize)
	return append(b, o.MessageInstructionIndex)
}

func parseSecp256k1Offsets(b []byte) Secp256k1Offsets {
	return Secp256k1Offsets{
		SignatureOffset:           binary.LittleEndian.Uint16(b[0:]),
		SignatureInstructionIndex: b[2],
		AddressOffset:             binary.LittleEndian.Uint16(b[3:]),
		AddressInstructionIndex:   b[5],
		MessageOffset:             binary.LittleEndian.Uint16(b[6:]),
		MessageSize:               binary.LittleEndian.Uint16(b[8:]),
		MessageInstructionIndex:   b[10],
	}
}

// EncodeSecp256k1Args encodes the data of a secp256k1 verifier instruction:
// count u8 | count × Secp256k1Offsets | trailing (addresses, etc).
func EncodeSecp256k1Args(sigs []Secp256k1Offsets, trailing []byte) []byte {
	out := make([]byte, 0, 1+len(sigs)*Secp256k1OffsetsSize+len(trailing))
	out = append(out, uint8(len(sigs))) // #nosec G115 - callers pass a handful of slots
	for _, s := range sigs {
		out = s.appendTo(out)
	}
	return append(out, trailing...)
}

// ParseSecp256k1Args decodes the offsets of a secp256k1 verifier
// instruction. Bytes after the offsets table are left to the caller.
func ParseSecp256k1Args(data []byte) ([]Secp256k1Offsets, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("secp256k1 args: empty")
	}
	n := int(data[0])
	if want := 1 + n*Secp256k1OffsetsSize; len(data) < want {
		return nil, fmt.Errorf("secp256k1 args: %d bytes for %d signatures, want at least %d", len(data), n, want)
	}
	out := make([]Secp256k1Offsets, n)
	for i := range out {
		out[i] = parseSecp256k1Offsets(data[1+i*Secp256k1OffsetsSize:])
	}
	return out, nil
}

// Secp256k1ArgsHeaderSize returns the size of the offsets table for n
// signatures; data placed after it starts at this offset.
func Secp256k1ArgsHeaderSize(n int) int {
	return 1 + n*Secp256k1OffsetsSize
}
