package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/linkage"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/txbuild"
	"github.com/ibs-source/pricefeed-consumer/internal/verifier"
)

func newCreateCmd() *cobra.Command {
	var (
		program programFlags
		submit  submitFlags
		feed    uint32
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Build the transaction that initialises a consumer record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := program.programID()
			if err != nil {
				return err
			}
			return submit.submit(cmd, txbuild.Create(id, protocol.FeedID(feed)))
		},
	}
	program.register(cmd)
	submit.register(cmd)
	cmd.Flags().Uint32Var(&feed, "feed", 2, "feed id served by the consumer instance")
	return cmd
}

// updateFlags describe one signed price update
type updateFlags struct {
	scheme      string
	key         string
	feed        uint32
	channel     string
	timestampUs uint64
	price       string
	exponent    int32
	noPrice     bool
}

// payload builds the update payload; a zero timestamp means now
func (u *updateFlags) payload(now time.Time) (protocol.Payload, error) {
	channel, err := protocol.ParseChannel(u.channel)
	if err != nil {
		return protocol.Payload{}, err
	}
	ts := u.timestampUs
	if ts == 0 {
		ts = uint64(now.UnixMicro()) // #nosec G115 - wall clock is positive
	}

	prop := protocol.EmptyPriceProperty()
	if !u.noPrice {
		d, err := decimal.NewFromString(u.price)
		if err != nil {
			return protocol.Payload{}, fmt.Errorf("price: %w", err)
		}
		prop = protocol.PriceProperty(protocol.PriceFromDecimal(d, u.exponent))
	}

	return protocol.Payload{
		Channel:     channel,
		TimestampUs: ts,
		Feeds: []protocol.Feed{{
			ID:         protocol.FeedID(u.feed),
			Properties: []protocol.Property{prop},
		}},
	}, nil
}

// build signs the payload and assembles the linked transaction
func (u *updateFlags) build(program ledger.ProgramID, now time.Time) (*ledger.Transaction, error) {
	scheme, err := protocol.ParseScheme(u.scheme)
	if err != nil {
		return nil, err
	}
	s, err := parseSigner(scheme, u.key)
	if err != nil {
		return nil, err
	}
	p, err := u.payload(now)
	if err != nil {
		return nil, err
	}
	raw, err := protocol.Encode(p)
	if err != nil {
		return nil, err
	}
	env, err := s.Sign(raw)
	if err != nil {
		return nil, err
	}

	var addr [linkage.AddressSize]byte
	if s.ec != nil {
		addr = verifier.EthereumAddress(s.ec.PubKey())
	}
	return txbuild.Update(scheme, program, env, addr)
}

func newUpdateCmd() *cobra.Command {
	var (
		program programFlags
		submit  submitFlags
		update  updateFlags
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Sign a price update and build the transaction applying it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := program.programID()
			if err != nil {
				return err
			}
			tx, err := update.build(id, time.Now())
			if err != nil {
				return err
			}
			return submit.submit(cmd, tx)
		},
	}
	program.register(cmd)
	submit.register(cmd)

	f := cmd.Flags()
	f.StringVar(&update.scheme, "scheme", "ed25519", "signature scheme (ed25519 or ecdsa)")
	f.StringVar(&update.key, "key", "", "signer private key (hex), as printed by keygen")
	f.Uint32Var(&update.feed, "feed", 2, "feed id")
	f.StringVar(&update.channel, "channel", protocol.ChannelRealTime.String(), "payload channel")
	f.Uint64Var(&update.timestampUs, "timestamp-us", 0, "publish timestamp in microseconds (default now)")
	f.StringVar(&update.price, "price", "", "price as a decimal, e.g. 62000.5")
	f.Int32Var(&update.exponent, "exponent", protocol.DefaultPriceExponent, "decimal exponent of the feed price")
	f.BoolVar(&update.noPrice, "no-price", false, "send the price property without a value")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
