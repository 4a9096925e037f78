package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/app"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/pool"
)

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid authority id %q", s)
	}
	return uint(id), nil
}

func authorityCmds() []*cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init-authority",
		Short: "Create a pool authority controlled by the caller",
		RunE: run(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app.App) (interface{}, error) {
			who, err := caller(cmd)
			if err != nil {
				return nil, err
			}
			feeBps, _ := cmd.Flags().GetUint16("fee-bps")
			return a.Authorities.Initialize(ctx, who, feeBps)
		}),
	}
	initCmd.Flags().Uint16("fee-bps", 0, "authority fee in basis points")

	transferCmd := &cobra.Command{
		Use:   "transfer-authority <id> <proposed>",
		Short: "Propose a new controller for an authority",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, args []string, a *app.App) (interface{}, error) {
			who, err := caller(cmd)
			if err != nil {
				return nil, err
			}
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			proposed, err := parseAddress("proposed", args[1])
			if err != nil {
				return nil, err
			}
			return a.Authorities.RequestTransfer(ctx, who, id, proposed)
		}),
	}

	acceptCmd := &cobra.Command{
		Use:   "accept-authority <id>",
		Short: "Accept a pending authority transfer",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, args []string, a *app.App) (interface{}, error) {
			who, err := caller(cmd)
			if err != nil {
				return nil, err
			}
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			return a.Authorities.AcceptTransfer(ctx, who, id)
		}),
	}

	return []*cobra.Command{initCmd, transferCmd, acceptCmd}
}

// poolOp is a caller-signed operation on the pool named by the first argument.
type poolOp func(ctx context.Context, cmd *cobra.Command, a *app.App, who, poolAddr common.Address, args []string) (interface{}, error)

func poolCommand(use, short string, nargs int, op poolOp) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, args []string, a *app.App) (interface{}, error) {
			who, err := caller(cmd)
			if err != nil {
				return nil, err
			}
			poolAddr, err := parseAddress("pool", args[0])
			if err != nil {
				return nil, err
			}
			return op(ctx, cmd, a, who, poolAddr, args[1:])
		}),
	}
}

func uintArg(name, s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

// amountOp adapts pool operations that take a single unsigned amount.
func amountOp(name string, fn func(ctx context.Context, s pool.Service, who, poolAddr common.Address, v uint64) (*models.Pool, error)) poolOp {
	return func(ctx context.Context, _ *cobra.Command, a *app.App, who, poolAddr common.Address, args []string) (interface{}, error) {
		v, err := uintArg(name, args[0], 64)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a.Pools, who, poolAddr, v)
	}
}

func expectedSpot(cmd *cobra.Command) *uint64 {
	if !cmd.Flags().Changed("expected-spot-price") {
		return nil
	}
	v, _ := cmd.Flags().GetUint64("expected-spot-price")
	return &v
}

func poolCmds() []*cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init-pool",
		Short: "Create a pool owned by the caller",
		RunE: run(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app.App) (interface{}, error) {
			who, err := caller(cmd)
			if err != nil {
				return nil, err
			}
			params, err := initParams(cmd, who)
			if err != nil {
				return nil, err
			}
			return a.Pools.Initialize(ctx, params)
		}),
	}
	f := initCmd.Flags()
	f.String("collection", "", "verified collection address")
	f.String("quote", "", "quote asset address")
	f.Uint("authority", 0, "authority id collecting a protocol fee, 0 for none")
	f.String("kind", "both", "pool kind (quote_only, asset_only, both)")
	f.String("curve", "linear", "bonding curve (linear, exponential)")
	f.Uint64("delta", 0, "curve step: absolute for linear, basis points for exponential")
	f.Uint16("fee-bps", 0, "pool fee in basis points, both-sided pools only")
	f.Uint64("spot-price", 0, "initial spot price")
	f.Bool("honor-royalties", false, "charge creator royalties on buys")
	_ = initCmd.MarkFlagRequired("collection")
	_ = initCmd.MarkFlagRequired("quote")

	fundQuote := poolCommand("fund-quote <pool> <amount>", "Deposit quote tokens into a pool", 2,
		amountOp("amount", func(ctx context.Context, s pool.Service, who, p common.Address, v uint64) (*models.Pool, error) {
			return s.FundWithQuote(ctx, who, p, v)
		}))

	fundNFT := poolCommand("fund-nft <pool> <mint>", "Deposit an NFT into a pool", 2,
		func(ctx context.Context, _ *cobra.Command, a *app.App, who, p common.Address, args []string) (interface{}, error) {
			mint, err := parseAddress("mint", args[0])
			if err != nil {
				return nil, err
			}
			return a.Pools.FundWithAsset(ctx, who, p, mint)
		})

	buy := poolCommand("buy <pool> <mint>", "Buy an NFT from a pool at its spot price", 2,
		func(ctx context.Context, cmd *cobra.Command, a *app.App, who, p common.Address, args []string) (interface{}, error) {
			mint, err := parseAddress("mint", args[0])
			if err != nil {
				return nil, err
			}
			return a.Pools.Buy(ctx, pool.BuyRequest{Buyer: who, Pool: p, Mint: mint, ExpectedSpotPrice: expectedSpot(cmd)})
		})
	buy.Flags().Uint64("expected-spot-price", 0, "fail if the spot price moved")

	sell := poolCommand("sell <pool> <mint>", "Sell an NFT into a pool at its spot price", 2,
		func(ctx context.Context, cmd *cobra.Command, a *app.App, who, p common.Address, args []string) (interface{}, error) {
			mint, err := parseAddress("mint", args[0])
			if err != nil {
				return nil, err
			}
			req := pool.SellRequest{Seller: who, Pool: p, Mint: mint, ExpectedSpotPrice: expectedSpot(cmd)}
			if route, _ := cmd.Flags().GetString("payment-route"); route != "" {
				addr, err := parseAddress("payment-route", route)
				if err != nil {
					return nil, err
				}
				req.PaymentRoute = &addr
			}
			return a.Pools.Sell(ctx, req)
		})
	sell.Flags().Uint64("expected-spot-price", 0, "fail if the spot price moved")
	sell.Flags().String("payment-route", "", "quote account receiving the proceeds")

	changeDelta := poolCommand("change-delta <pool> <delta>", "Set a pool's curve step", 2,
		amountOp("delta", func(ctx context.Context, s pool.Service, who, p common.Address, v uint64) (*models.Pool, error) {
			return s.ChangeDelta(ctx, who, p, v)
		}))

	changeFee := poolCommand("change-fee <pool> <fee-bps>", "Set a pool's fee", 2,
		func(ctx context.Context, _ *cobra.Command, a *app.App, who, p common.Address, args []string) (interface{}, error) {
			v, err := uintArg("fee-bps", args[0], 16)
			if err != nil {
				return nil, err
			}
			return a.Pools.ChangeFee(ctx, who, p, uint16(v))
		})

	changeSpot := poolCommand("change-spot-price <pool> <price>", "Set a pool's spot price", 2,
		amountOp("price", func(ctx context.Context, s pool.Service, who, p common.Address, v uint64) (*models.Pool, error) {
			return s.ChangeSpotPrice(ctx, who, p, v)
		}))

	closePool := poolCommand("close-pool <pool>", "Close an empty pool", 1,
		func(ctx context.Context, _ *cobra.Command, a *app.App, who, p common.Address, _ []string) (interface{}, error) {
			if err := a.Pools.ClosePool(ctx, who, p); err != nil {
				return nil, err
			}
			return map[string]string{"closed": p.Hex()}, nil
		})

	withdrawNFT := poolCommand("withdraw-nft <pool> <mint>", "Withdraw an escrowed NFT to its beneficiary", 2,
		func(ctx context.Context, _ *cobra.Command, a *app.App, who, p common.Address, args []string) (interface{}, error) {
			mint, err := parseAddress("mint", args[0])
			if err != nil {
				return nil, err
			}
			return a.Pools.WithdrawNFT(ctx, who, p, mint)
		})

	withdrawQuote := poolCommand("withdraw-quote <pool> <amount>", "Withdraw quote tokens to the owner", 2,
		amountOp("amount", func(ctx context.Context, s pool.Service, who, p common.Address, v uint64) (*models.Pool, error) {
			return s.WithdrawQuote(ctx, who, p, v)
		}))

	withdrawFee := poolCommand("withdraw-fee <pool> <amount>", "Withdraw accrued pool fees to the owner", 2,
		amountOp("amount", func(ctx context.Context, s pool.Service, who, p common.Address, v uint64) (*models.Pool, error) {
			return s.WithdrawFee(ctx, who, p, v)
		}))

	return []*cobra.Command{
		initCmd, fundQuote, fundNFT, buy, sell,
		changeDelta, changeFee, changeSpot, closePool,
		withdrawNFT, withdrawQuote, withdrawFee,
	}
}

func initParams(cmd *cobra.Command, owner common.Address) (pool.InitParams, error) {
	f := cmd.Flags()
	collection, err := addressFlag(cmd, "collection")
	if err != nil {
		return pool.InitParams{}, err
	}
	quote, err := addressFlag(cmd, "quote")
	if err != nil {
		return pool.InitParams{}, err
	}
	kindName, _ := f.GetString("kind")
	kind, err := models.ParsePoolKind(kindName)
	if err != nil {
		return pool.InitParams{}, err
	}
	curveName, _ := f.GetString("curve")
	curveKind, err := curve.ParseKind(curveName)
	if err != nil {
		return pool.InitParams{}, err
	}

	params := pool.InitParams{
		Owner:      owner,
		Collection: collection,
		QuoteAsset: quote,
		Kind:       kind,
		Curve:      curveKind,
	}
	params.Delta, _ = f.GetUint64("delta")
	params.FeeBps, _ = f.GetUint16("fee-bps")
	params.SpotPrice, _ = f.GetUint64("spot-price")
	params.HonorRoyalties, _ = f.GetBool("honor-royalties")
	if id, _ := f.GetUint("authority"); id != 0 {
		authorityID := id
		params.AuthorityID = &authorityID
	}
	return params, nil
}
