package verifier

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"golang.org/x/crypto/sha3"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/linkage"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

// compact signatures carry 27 + recovery id in their first byte.
const compactRecoveryBase = 27

// Secp256k1Program recovers the signer of every slot declared in its
// instruction data and compares its address with the one the slot names.
type Secp256k1Program struct{}

var _ ledger.Program = Secp256k1Program{}

// Process verifies each slot against the ranges it names.
func (Secp256k1Program) Process(_ context.Context, inv *ledger.Invocation, data []byte) error {
	slots, err := linkage.ParseSecp256k1Args(data)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return fmt.Errorf("%w: no signatures", ErrSignature)
	}
	for i, s := range slots {
		sig, err := slice(inv.Tx, uint16(s.SignatureInstructionIndex), s.SignatureOffset, protocol.RecoverableSigSize)
		if err != nil {
			return fmt.Errorf("slot %d signature: %w", i, err)
		}
		want, err := slice(inv.Tx, uint16(s.AddressInstructionIndex), s.AddressOffset, linkage.AddressSize)
		if err != nil {
			return fmt.Errorf("slot %d address: %w", i, err)
		}
		msg, err := slice(inv.Tx, uint16(s.MessageInstructionIndex), s.MessageOffset, int(s.MessageSize))
		if err != nil {
			return fmt.Errorf("slot %d message: %w", i, err)
		}

		addr, err := recoverAddress(sig, msg)
		if err != nil {
			return fmt.Errorf("%w: secp256k1 slot %d: %v", ErrSignature, i, err)
		}
		if !bytes.Equal(addr[:], want) {
			return fmt.Errorf("%w: secp256k1 slot %d recovered %x", ErrSignature, i, addr)
		}
	}
	return nil
}

// recoverAddress recovers the address of the key that produced sig
// (r || s || recovery_id) over keccak256(msg).
func recoverAddress(sig, msg []byte) ([linkage.AddressSize]byte, error) {
	var addr [linkage.AddressSize]byte
	recID := sig[protocol.SignatureSize]
	if recID > 3 {
		return addr, fmt.Errorf("recovery id %d", recID)
	}
	compact := make([]byte, 0, protocol.RecoverableSigSize)
	compact = append(compact, compactRecoveryBase+recID)
	compact = append(compact, sig[:protocol.SignatureSize]...)

	pub, _, err := btcec.RecoverCompact(btcec.S256(), compact, keccak256(msg))
	if err != nil {
		return addr, err
	}
	return EthereumAddress(pub), nil
}

// RecoverSigner returns the address that signed env.
func RecoverSigner(env *protocol.ECDSAEnvelope) ([linkage.AddressSize]byte, error) {
	sig := make([]byte, 0, protocol.RecoverableSigSize)
	sig = append(sig, env.Signature[:]...)
	sig = append(sig, env.RecoveryID)
	return recoverAddress(sig, env.Payload)
}

// EthereumAddress derives the 20 byte address of pub: the last 20 bytes of
// keccak256 over the uncompressed point without its prefix.
func EthereumAddress(pub *btcec.PublicKey) [linkage.AddressSize]byte {
	var addr [linkage.AddressSize]byte
	h := keccak256(pub.SerializeUncompressed()[1:])
	copy(addr[:], h[len(h)-linkage.AddressSize:])
	return addr
}

// SignECDSAEnvelope signs keccak256(payload) with priv and returns the
// encoded envelope.
func SignECDSAEnvelope(priv *btcec.PrivateKey, payload []byte) ([]byte, error) {
	sig, err := btcec.SignCompact(btcec.S256(), priv, keccak256(payload), false)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	env := &protocol.ECDSAEnvelope{
		RecoveryID: sig[0] - compactRecoveryBase,
		Payload:    payload,
	}
	copy(env.Signature[:], sig[1:])
	return env.Bytes()
}

func keccak256(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}
