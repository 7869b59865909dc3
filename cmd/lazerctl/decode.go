package main

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ibs-source/pricefeed-consumer/internal/engine"
	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/message"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/verifier"
)

type decodedProperty struct {
	Tag          uint8   `json:"tag"`
	Present      bool    `json:"present"`
	Price        *int64  `json:"price,omitempty"`
	PriceDecimal *string `json:"price_decimal,omitempty"`
}

type decodedFeed struct {
	ID         uint32            `json:"id"`
	Properties []decodedProperty `json:"properties"`
}

type decodedPayload struct {
	Channel     string        `json:"channel"`
	TimestampUs uint64        `json:"timestamp_us"`
	Feeds       []decodedFeed `json:"feeds"`
}

type decodedEnvelope struct {
	Scheme    string          `json:"scheme"`
	Signer    string          `json:"signer"`
	Signature string          `json:"signature"`
	Payload   *decodedPayload `json:"payload,omitempty"`
	Error     string          `json:"payload_error,omitempty"`
}

type decodedInstruction struct {
	Index          int              `json:"index"`
	Program        string           `json:"program"`
	Kind           string           `json:"kind"`
	FeedID         *uint32          `json:"feed_id,omitempty"`
	VerifierIndex  *uint16          `json:"verifier_index,omitempty"`
	SignatureIndex *uint16          `json:"signature_index,omitempty"`
	Slots          *uint8           `json:"slots,omitempty"`
	Envelope       *decodedEnvelope `json:"envelope,omitempty"`
	Data           string           `json:"data,omitempty"`
}

type decodedTransaction struct {
	ID           string               `json:"id"`
	Instructions []decodedInstruction `json:"instructions"`
}

func newDecodeCmd() *cobra.Command {
	var (
		program  programFlags
		exponent int32
		raw      bool
	)
	cmd := &cobra.Command{
		Use:   "decode <hex envelope | hex payload | json transaction>",
		Short: "Decode a signed envelope, a bare payload or a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.TrimSpace(args[0])
			var v interface{}
			var err error
			switch {
			case strings.HasPrefix(input, "{"):
				id, perr := program.programID()
				if perr != nil {
					return perr
				}
				v, err = decodeTransaction(message.Payload(input), id, exponent)
			case raw:
				var b []byte
				if b, err = decodeHex(input); err == nil {
					v, err = decodePayload(b, exponent)
				}
			default:
				var b []byte
				if b, err = decodeHex(input); err == nil {
					v, err = decodeEnvelope(b, exponent)
				}
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	program.register(cmd)
	cmd.Flags().Int32Var(&exponent, "exponent", protocol.DefaultPriceExponent, "decimal exponent used to render prices")
	cmd.Flags().BoolVar(&raw, "payload", false, "input is a bare payload rather than an envelope")
	return cmd
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("input is not valid hex data: %w", err)
	}
	return b, nil
}

func decodePayload(b []byte, exponent int32) (*decodedPayload, error) {
	p, err := protocol.Decode(b)
	if err != nil {
		return nil, err
	}
	out := &decodedPayload{Channel: p.Channel.String(), TimestampUs: p.TimestampUs, Feeds: make([]decodedFeed, len(p.Feeds))}
	for i, f := range p.Feeds {
		df := decodedFeed{ID: uint32(f.ID), Properties: make([]decodedProperty, len(f.Properties))}
		for j, prop := range f.Properties {
			dp := decodedProperty{Tag: uint8(prop.Tag), Present: prop.Present}
			if prop.Present {
				price := int64(prop.Price)
				dec := prop.Price.Decimal(exponent).String()
				dp.Price, dp.PriceDecimal = &price, &dec
			}
			df.Properties[j] = dp
		}
		out.Feeds[i] = df
	}
	return out, nil
}

// decodeEnvelope picks the layout from the magic. The payload is decoded
// on a best effort basis so malformed payloads can still be inspected.
func decodeEnvelope(b []byte, exponent int32) (*decodedEnvelope, error) {
	if len(b) < protocol.MagicSize {
		return nil, fmt.Errorf("%w: %d bytes", protocol.ErrInvalidEnvelope, len(b))
	}

	var out decodedEnvelope
	var payload []byte
	switch binary.LittleEndian.Uint32(b) {
	case protocol.Ed25519Magic:
		env, err := protocol.ParseEd25519Envelope(b)
		if err != nil {
			return nil, err
		}
		out.Scheme = protocol.SchemeEd25519.String()
		out.Signer = hex.EncodeToString(env.PublicKey[:])
		out.Signature = hex.EncodeToString(env.Signature[:])
		payload = env.Payload
	case protocol.ECDSAMagic:
		env, err := protocol.ParseECDSAEnvelope(b)
		if err != nil {
			return nil, err
		}
		out.Scheme = protocol.SchemeECDSA.String()
		if addr, err := verifier.RecoverSigner(env); err == nil {
			out.Signer = hex.EncodeToString(addr[:])
		}
		out.Signature = hex.EncodeToString(append(env.Signature[:], env.RecoveryID))
		payload = env.Payload
	default:
		return nil, fmt.Errorf("%w: unknown magic %#08x", protocol.ErrInvalidEnvelope, binary.LittleEndian.Uint32(b))
	}

	p, err := decodePayload(payload, exponent)
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Payload = p
	}
	return &out, nil
}

// decodeTransaction describes each instruction; those addressed to
// program are decoded as consumer instructions.
func decodeTransaction(body message.Payload, program ledger.ProgramID, exponent int32) (*decodedTransaction, error) {
	tx, err := message.ParseTransaction(body)
	if err != nil {
		return nil, err
	}
	out := &decodedTransaction{ID: tx.ID, Instructions: make([]decodedInstruction, len(tx.Instructions))}
	for i, ix := range tx.Instructions {
		d := decodedInstruction{Index: i, Program: ix.Program.String()}
		switch ix.Program {
		case ledger.Ed25519VerifierID:
			d.Kind = "ed25519-verifier"
			decodeVerifierInstruction(&d, ix.Data)
		case ledger.Secp256k1VerifierID:
			d.Kind = "secp256k1-verifier"
			decodeVerifierInstruction(&d, ix.Data)
		case program:
			decodeConsumerInstruction(&d, ix.Data, exponent)
		default:
			d.Kind = "unknown"
			d.Data = hex.EncodeToString(ix.Data)
		}
		out.Instructions[i] = d
	}
	return out, nil
}

// decodeVerifierInstruction reports the slot count, the first byte of
// both verifier layouts.
func decodeVerifierInstruction(d *decodedInstruction, data []byte) {
	if len(data) > 0 {
		n := data[0]
		d.Slots = &n
	}
	d.Data = hex.EncodeToString(data)
}

func decodeConsumerInstruction(d *decodedInstruction, data []byte, exponent int32) {
	ix, err := engine.DecodeInstruction(data)
	if err != nil {
		d.Kind = "invalid"
		d.Data = hex.EncodeToString(data)
		return
	}
	d.Kind = ix.Tag().String()
	switch args := ix.(type) {
	case engine.CreateArgs:
		feed := uint32(args.FeedID)
		d.FeedID = &feed
	case engine.UpdateArgs:
		vi, si := args.VerifierIndex, args.SignatureIndex
		d.VerifierIndex, d.SignatureIndex = &vi, &si
		env, err := decodeEnvelope(args.Envelope, exponent)
		if err != nil {
			d.Data = hex.EncodeToString(args.Envelope)
			return
		}
		d.Envelope = env
	}
}
