// Package custody derives escrow addresses and moves value in and out of
// program-controlled vaults.
package custody

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/ledger"
)

// Deriver maps seeds to deterministic addresses under one program id.
type Deriver struct {
	programID common.Address
}

func NewDeriver(programID common.Address) Deriver {
	return Deriver{programID: programID}
}

func (d Deriver) ProgramID() common.Address {
	return d.programID
}

// Derive hashes the program id and seeds and keeps the low 20 bytes.
func (d Deriver) Derive(seeds ...[]byte) common.Address {
	data := make([][]byte, 0, len(seeds)+1)
	data = append(data, d.programID.Bytes())
	data = append(data, seeds...)
	return common.BytesToAddress(crypto.Keccak256(data...)[12:])
}

func (d Deriver) PoolAddress(owner, collection, quote common.Address) common.Address {
	return d.Derive([]byte("pool"), owner.Bytes(), collection.Bytes(), quote.Bytes())
}

// Signer is the address that owns every escrow account.
func (d Deriver) Signer() common.Address {
	return d.Derive([]byte("program"), []byte("signer"))
}

// Proof issues the capability required to withdraw from this program's vaults.
func (d Deriver) Proof() EscrowProof {
	return EscrowProof{program: d.programID, signer: d.Signer()}
}

// EscrowProof is an opaque capability showing that the holder acts for the
// program that controls an escrow. Only a Deriver can issue one.
type EscrowProof struct {
	program common.Address
	signer  common.Address
}

// VaultKind distinguishes the escrow accounts of a pool.
type VaultKind uint8

const (
	QuoteVault VaultKind = iota
	FeeVault
	AssetVault
)

func (k VaultKind) String() string {
	switch k {
	case QuoteVault:
		return "quote_vault"
	case FeeVault:
		return "fee_vault"
	case AssetVault:
		return "nft_vault"
	default:
		return fmt.Sprintf("vault(%d)", uint8(k))
	}
}

// Vault is a program-owned token account bound to a pool.
type Vault struct {
	Kind    VaultKind
	Pool    common.Address
	Asset   common.Address
	Address common.Address

	program common.Address
	signer  common.Address
	ledger  ledger.Ledger
}

// Open creates the escrow account if it does not exist yet.
func (v Vault) Open(ctx context.Context) error {
	_, err := v.ledger.OpenAccount(ctx, v.Address, v.signer, v.Asset)
	return err
}

// Close removes an empty escrow account.
func (v Vault) Close(ctx context.Context) error {
	return v.ledger.CloseAccount(ctx, v.signer, v.Address)
}

func (v Vault) Balance(ctx context.Context) (uint64, error) {
	return v.ledger.BalanceOf(ctx, v.Address)
}

// Deposit moves amount from an account controlled by signer into the vault.
func (v Vault) Deposit(ctx context.Context, signer, from common.Address, amount uint64) error {
	return v.ledger.Transfer(ctx, signer, from, v.Address, v.Asset, amount)
}

// Withdraw moves amount out of the vault. The proof must come from the
// program that owns the vault.
func (v Vault) Withdraw(ctx context.Context, to common.Address, amount uint64, proof EscrowProof) error {
	if proof.program != v.program || proof.signer != v.signer {
		return apperrors.Authorization(fmt.Sprintf("escrow proof does not control %s %s", v.Kind, v.Address.Hex()))
	}
	return v.ledger.Transfer(ctx, v.signer, v.Address, to, v.Asset, amount)
}

// Custodian hands out the vaults of a pool.
type Custodian struct {
	deriver Deriver
	ledger  ledger.Ledger
}

func NewCustodian(deriver Deriver, l ledger.Ledger) *Custodian {
	return &Custodian{deriver: deriver, ledger: l}
}

// WithLedger returns a custodian operating on l, typically a transaction-bound ledger.
func (c *Custodian) WithLedger(l ledger.Ledger) *Custodian {
	return &Custodian{deriver: c.deriver, ledger: l}
}

func (c *Custodian) Deriver() Deriver {
	return c.deriver
}

func (c *Custodian) QuoteVault(pool, quote common.Address) Vault {
	return c.vault(QuoteVault, pool, quote, c.deriver.Derive([]byte("quote_vault"), pool.Bytes()))
}

func (c *Custodian) FeeVault(pool, quote common.Address) Vault {
	return c.vault(FeeVault, pool, quote, c.deriver.Derive([]byte("fee_vault"), pool.Bytes()))
}

func (c *Custodian) AssetVault(pool, mint common.Address) Vault {
	return c.vault(AssetVault, pool, mint, c.deriver.Derive([]byte("nft_vault"), pool.Bytes(), mint.Bytes()))
}

func (c *Custodian) vault(kind VaultKind, pool, asset, address common.Address) Vault {
	return Vault{
		Kind:    kind,
		Pool:    pool,
		Asset:   asset,
		Address: address,
		program: c.deriver.programID,
		signer:  c.deriver.Signer(),
		ledger:  c.ledger,
	}
}
