package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/app"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/ledger"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

func queryCmds() []*cobra.Command {
	showPool := &cobra.Command{
		Use:   "show-pool <pool>",
		Short: "Print a pool and its escrowed NFTs",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, _ *cobra.Command, args []string, a *app.App) (interface{}, error) {
			poolAddr, err := parseAddress("pool", args[0])
			if err != nil {
				return nil, err
			}
			p, err := a.Pools.Get(ctx, poolAddr)
			if err != nil {
				return nil, err
			}
			assets, err := a.Pools.ListAssets(ctx, poolAddr)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"pool": p, "assets": assets}, nil
		}),
	}

	listPools := &cobra.Command{
		Use:   "list-pools",
		Short: "List pools",
		RunE: run(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app.App) (interface{}, error) {
			f := cmd.Flags()
			if owner, _ := f.GetString("owner"); owner != "" {
				addr, err := parseAddress("owner", owner)
				if err != nil {
					return nil, err
				}
				return a.Pools.ListByOwner(ctx, addr)
			}
			if coll, _ := f.GetString("collection"); coll != "" {
				addr, err := parseAddress("collection", coll)
				if err != nil {
					return nil, err
				}
				return a.Pools.ListByCollection(ctx, addr)
			}
			if active, _ := f.GetBool("active"); active {
				return a.Pools.ListActive(ctx)
			}
			limit, _ := f.GetInt("limit")
			offset, _ := f.GetInt("offset")
			return a.Pools.List(ctx, limit, offset)
		}),
	}
	listPools.Flags().String("owner", "", "only pools owned by this address")
	listPools.Flags().String("collection", "", "only pools trading this collection")
	listPools.Flags().Bool("active", false, "only active pools")
	listPools.Flags().Int("limit", 50, "page size")
	listPools.Flags().Int("offset", 0, "page offset")

	quote := &cobra.Command{
		Use:   "quote <pool> <buy|sell>",
		Short: "Price the next trade against a pool",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, args []string, a *app.App) (interface{}, error) {
			poolAddr, err := parseAddress("pool", args[0])
			if err != nil {
				return nil, err
			}
			side, err := curve.ParseDirection(args[1])
			if err != nil {
				return nil, err
			}
			decimals, _ := cmd.Flags().GetInt32("decimals")
			return a.Pools.Quote(ctx, poolAddr, side, decimals)
		}),
	}
	quote.Flags().Int32("decimals", 0, "quote asset decimals for display prices")

	history := &cobra.Command{
		Use:   "history",
		Short: "List recorded operations",
		RunE: run(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app.App) (interface{}, error) {
			f := cmd.Flags()
			limit, _ := f.GetInt("limit")
			if poolAddr, _ := f.GetString("pool"); poolAddr != "" {
				addr, err := parseAddress("pool", poolAddr)
				if err != nil {
					return nil, err
				}
				if window, _ := f.GetDuration("volume"); window > 0 {
					volume, err := a.History.GetPoolTradeVolume(ctx, addr.Hex(), time.Now().Add(-window))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"pool": addr.Hex(), "window": window.String(), "volume": volume}, nil
				}
				return a.History.GetByPool(ctx, addr.Hex(), limit, 0)
			}
			if who, _ := f.GetString("caller"); who != "" {
				addr, err := parseAddress("caller", who)
				if err != nil {
					return nil, err
				}
				return a.History.GetByCaller(ctx, addr.Hex(), limit, 0)
			}
			if hash, _ := f.GetString("tx"); hash != "" {
				tx, err := a.History.GetByTxHash(ctx, hash)
				if err != nil {
					return nil, err
				}
				if tx == nil {
					return nil, apperrors.NotFound("transaction not found")
				}
				return tx, nil
			}
			return a.History.GetRecentTransactions(ctx, limit)
		}),
	}
	history.Flags().String("pool", "", "operations on this pool")
	history.Flags().Duration("volume", 0, "with --pool, print traded volume over this window instead")
	history.Flags().String("caller", "", "operations submitted by this address")
	history.Flags().String("tx", "", "a single operation by hash")
	history.Flags().Int("limit", 50, "maximum rows")

	showAuthority := &cobra.Command{
		Use:   "show-authority <id>",
		Short: "Print a pool authority",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, _ *cobra.Command, args []string, a *app.App) (interface{}, error) {
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			return a.Authorities.Get(ctx, id)
		}),
	}

	return []*cobra.Command{showPool, listPools, quote, history, showAuthority}
}

// parseCreators reads "address=share" pairs.
func parseCreators(pairs []string) (pq.StringArray, pq.Int64Array, error) {
	creators := make(pq.StringArray, 0, len(pairs))
	shares := make(pq.Int64Array, 0, len(pairs))
	for _, pair := range pairs {
		addr, share, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, nil, fmt.Errorf("creator %q must be address=share", pair)
		}
		creator, err := parseAddress("creator", addr)
		if err != nil {
			return nil, nil, err
		}
		n, err := strconv.ParseUint(share, 10, 8)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid share in %q", pair)
		}
		creators = append(creators, creator.Hex())
		shares = append(shares, int64(n))
	}
	return creators, shares, nil
}

func assetCmds() []*cobra.Command {
	registerCollection := &cobra.Command{
		Use:   "register-collection <mint>",
		Short: "Register a sized collection in the asset registry",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, args []string, a *app.App) (interface{}, error) {
			mint, err := parseAddress("mint", args[0])
			if err != nil {
				return nil, err
			}
			size, _ := cmd.Flags().GetUint64("size")
			name, _ := cmd.Flags().GetString("name")
			meta := &models.AssetMetadata{Mint: mint.Hex(), Name: name, CollectionSize: &size}
			if err := a.Assets.Register(ctx, meta); err != nil {
				return nil, err
			}
			return meta, nil
		}),
	}
	registerCollection.Flags().Uint64("size", 0, "number of items in the collection")
	registerCollection.Flags().String("name", "", "display name")

	registerAsset := &cobra.Command{
		Use:   "register-asset <mint>",
		Short: "Register an NFT with its collection and royalty schedule",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, args []string, a *app.App) (interface{}, error) {
			f := cmd.Flags()
			mint, err := parseAddress("mint", args[0])
			if err != nil {
				return nil, err
			}
			meta := &models.AssetMetadata{Mint: mint.Hex()}
			meta.Name, _ = f.GetString("name")
			meta.CollectionVerified, _ = f.GetBool("verified")
			meta.SellerFeeBps, _ = f.GetUint16("seller-fee-bps")
			if c, _ := f.GetString("collection"); c != "" {
				collection, err := parseAddress("collection", c)
				if err != nil {
					return nil, err
				}
				hex := collection.Hex()
				meta.Collection = &hex
			}
			pairs, _ := f.GetStringSlice("creator")
			if meta.Creators, meta.Shares, err = parseCreators(pairs); err != nil {
				return nil, err
			}
			if err := a.Assets.Register(ctx, meta); err != nil {
				return nil, err
			}
			return meta, nil
		}),
	}
	registerAsset.Flags().String("collection", "", "collection the NFT belongs to")
	registerAsset.Flags().Bool("verified", true, "collection membership is verified")
	registerAsset.Flags().Uint16("seller-fee-bps", 0, "royalty rate in basis points")
	registerAsset.Flags().StringSlice("creator", nil, "creator payouts as address=share (shares sum to 100)")
	registerAsset.Flags().String("name", "", "display name")

	mint := &cobra.Command{
		Use:   "mint <owner> <asset> <amount>",
		Short: "Credit units of an asset to an owner's associated account",
		Args:  cobra.ExactArgs(3),
		RunE: run(func(ctx context.Context, _ *cobra.Command, args []string, a *app.App) (interface{}, error) {
			owner, err := parseAddress("owner", args[0])
			if err != nil {
				return nil, err
			}
			asset, err := parseAddress("asset", args[1])
			if err != nil {
				return nil, err
			}
			amount, err := uintArg("amount", args[2], 64)
			if err != nil {
				return nil, err
			}
			account, err := a.Ledger.Mint(ctx, owner, asset, amount)
			if err != nil {
				return nil, err
			}
			return a.Ledger.Account(ctx, account)
		}),
	}

	balance := &cobra.Command{
		Use:   "balance <owner> <asset>",
		Short: "Print an owner's associated account balance",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, _ *cobra.Command, args []string, a *app.App) (interface{}, error) {
			owner, err := parseAddress("owner", args[0])
			if err != nil {
				return nil, err
			}
			asset, err := parseAddress("asset", args[1])
			if err != nil {
				return nil, err
			}
			account := ledger.AssociatedAddress(owner, asset)
			amount, err := a.Ledger.BalanceOf(ctx, account)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"account": account.Hex(), "amount": amount}, nil
		}),
	}

	return []*cobra.Command{registerCollection, registerAsset, mint, balance}
}
