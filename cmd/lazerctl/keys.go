package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ed25519"

	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/verifier"
)

// signer signs payloads with one private key
type signer struct {
	scheme protocol.Scheme
	ed     ed25519.PrivateKey
	ec     *btcec.PrivateKey
}

// parseSigner decodes a hex private key: an ed25519 seed (or full key) or
// a secp256k1 scalar.
func parseSigner(scheme protocol.Scheme, s string) (*signer, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	switch scheme {
	case protocol.SchemeEd25519:
		switch len(b) {
		case ed25519.SeedSize:
			return &signer{scheme: scheme, ed: ed25519.NewKeyFromSeed(b)}, nil
		case ed25519.PrivateKeySize:
			return &signer{scheme: scheme, ed: ed25519.PrivateKey(b)}, nil
		}
		return nil, fmt.Errorf("private key: ed25519 key is %d bytes", len(b))
	case protocol.SchemeECDSA:
		if len(b) != btcec.PrivKeyBytesLen {
			return nil, fmt.Errorf("private key: secp256k1 key is %d bytes, want %d", len(b), btcec.PrivKeyBytesLen)
		}
		priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), b)
		return &signer{scheme: scheme, ec: priv}, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %s", scheme)
	}
}

func generateSigner(scheme protocol.Scheme) (*signer, error) {
	switch scheme {
	case protocol.SchemeEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &signer{scheme: scheme, ed: priv}, nil
	case protocol.SchemeECDSA:
		priv, err := btcec.NewPrivateKey(btcec.S256())
		if err != nil {
			return nil, err
		}
		return &signer{scheme: scheme, ec: priv}, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %s", scheme)
	}
}

// PrivateHex is the form parseSigner accepts
func (s *signer) PrivateHex() string {
	if s.ed != nil {
		return hex.EncodeToString(s.ed.Seed())
	}
	return hex.EncodeToString(s.ec.Serialize())
}

// TrustedSigner is the value a consumer instance lists as trusted: the
// ed25519 public key or the secp256k1 address.
func (s *signer) TrustedSigner() string {
	if s.ed != nil {
		return hex.EncodeToString(s.ed.Public().(ed25519.PublicKey))
	}
	addr := verifier.EthereumAddress(s.ec.PubKey())
	return hex.EncodeToString(addr[:])
}

// Sign wraps payload in the envelope of the signer's scheme
func (s *signer) Sign(payload []byte) ([]byte, error) {
	if s.ed != nil {
		return verifier.SignEd25519Envelope(s.ed, payload)
	}
	return verifier.SignECDSAEnvelope(s.ec, payload)
}

func newKeygenCmd() *cobra.Command {
	var scheme string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signer key and print its trusted signer value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := protocol.ParseScheme(scheme)
			if err != nil {
				return err
			}
			s, err := generateSigner(sch)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scheme:         %s\n", sch)
			fmt.Fprintf(out, "private_key:    %s\n", s.PrivateHex())
			fmt.Fprintf(out, "trusted_signer: %s\n", s.TrustedSigner())
			return nil
		},
	}
	cmd.Flags().StringVar(&scheme, "scheme", "ed25519", "signature scheme (ed25519 or ecdsa)")
	return cmd
}
