// Package ledger is the token-account substrate every pool transfer moves through.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

var (
	ErrAssetMismatch       = errors.New("asset mismatch")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrNotOwner            = errors.New("signer does not own account")
)

// Ledger moves fungible and non-fungible units between token accounts.
type Ledger interface {
	// WithTx binds the ledger to an enclosing database transaction.
	WithTx(tx *gorm.DB) Ledger
	OpenAccount(ctx context.Context, address, owner, asset common.Address) (*models.Account, error)
	Account(ctx context.Context, address common.Address) (*models.Account, error)
	BalanceOf(ctx context.Context, address common.Address) (uint64, error)
	Transfer(ctx context.Context, signer, from, to, asset common.Address, amount uint64) error
	Mint(ctx context.Context, owner, asset common.Address, amount uint64) (common.Address, error)
	CloseAccount(ctx context.Context, signer, address common.Address) error
}

// AssociatedAddress is the canonical account of owner for asset.
func AssociatedAddress(owner, asset common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("associated"), owner.Bytes(), asset.Bytes())[12:])
}

type gormLedger struct {
	db *gorm.DB
}

// NewLedger creates a ledger backed by the ledger_accounts table
func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

func (l *gormLedger) WithTx(tx *gorm.DB) Ledger {
	return &gormLedger{db: tx}
}

func (l *gormLedger) OpenAccount(ctx context.Context, address, owner, asset common.Address) (*models.Account, error) {
	existing, err := l.Account(ctx, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Asset != asset.Hex() {
			return nil, apperrors.New(apperrors.ErrValidation,
				fmt.Sprintf("account %s holds %s, not %s", address.Hex(), existing.Asset, asset.Hex()), ErrAssetMismatch)
		}
		if existing.Owner != owner.Hex() {
			return nil, apperrors.New(apperrors.ErrAuthorization,
				fmt.Sprintf("account %s is owned by %s", address.Hex(), existing.Owner), ErrNotOwner)
		}
		return existing, nil
	}

	account := &models.Account{Address: address.Hex(), Owner: owner.Hex(), Asset: asset.Hex()}
	if err := l.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func (l *gormLedger) Account(ctx context.Context, address common.Address) (*models.Account, error) {
	var account models.Account
	err := l.db.WithContext(ctx).Where("address = ?", address.Hex()).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (l *gormLedger) BalanceOf(ctx context.Context, address common.Address) (uint64, error) {
	account, err := l.Account(ctx, address)
	if err != nil || account == nil {
		return 0, err
	}
	return account.Amount, nil
}

func (l *gormLedger) Transfer(ctx context.Context, signer, from, to, asset common.Address, amount uint64) error {
	src, err := l.Account(ctx, from)
	if err != nil {
		return err
	}
	if src == nil {
		return apperrors.New(apperrors.ErrInsufficientBalance,
			fmt.Sprintf("source account %s does not exist", from.Hex()), ErrAccountNotFound)
	}
	if src.Owner != signer.Hex() {
		return apperrors.New(apperrors.ErrAuthorization,
			fmt.Sprintf("%s cannot debit %s", signer.Hex(), from.Hex()), ErrNotOwner)
	}
	if src.Asset != asset.Hex() {
		return apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("source account holds %s, not %s", src.Asset, asset.Hex()), ErrAssetMismatch)
	}

	dst, err := l.Account(ctx, to)
	if err != nil {
		return err
	}
	if dst == nil {
		return apperrors.New(apperrors.ErrNotFound,
			fmt.Sprintf("destination account %s does not exist", to.Hex()), ErrAccountNotFound)
	}
	if dst.Asset != asset.Hex() {
		return apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("destination account holds %s, not %s", dst.Asset, asset.Hex()), ErrAssetMismatch)
	}

	if src.Amount < amount {
		return apperrors.New(apperrors.ErrInsufficientBalance,
			fmt.Sprintf("account %s holds %d, needs %d", from.Hex(), src.Amount, amount), ErrInsufficientBalance)
	}
	if amount == 0 || from == to {
		return nil
	}
	credited, overflow := math.SafeAdd(dst.Amount, amount)
	if overflow {
		return apperrors.Arithmetic(fmt.Sprintf("credit to %s overflows", to.Hex()))
	}

	if err := l.setAmount(ctx, src, src.Amount-amount); err != nil {
		return err
	}
	return l.setAmount(ctx, dst, credited)
}

func (l *gormLedger) Mint(ctx context.Context, owner, asset common.Address, amount uint64) (common.Address, error) {
	address := AssociatedAddress(owner, asset)
	account, err := l.OpenAccount(ctx, address, owner, asset)
	if err != nil {
		return common.Address{}, err
	}
	credited, overflow := math.SafeAdd(account.Amount, amount)
	if overflow {
		return common.Address{}, apperrors.Arithmetic("mint overflows account")
	}
	return address, l.setAmount(ctx, account, credited)
}

func (l *gormLedger) CloseAccount(ctx context.Context, signer, address common.Address) error {
	account, err := l.Account(ctx, address)
	if err != nil || account == nil {
		return err
	}
	if account.Owner != signer.Hex() {
		return apperrors.New(apperrors.ErrAuthorization,
			fmt.Sprintf("%s cannot close %s", signer.Hex(), address.Hex()), ErrNotOwner)
	}
	if account.Amount != 0 {
		return apperrors.Invariant(fmt.Sprintf("account %s still holds %d", address.Hex(), account.Amount))
	}
	return l.db.WithContext(ctx).Delete(&models.Account{}, "address = ?", address.Hex()).Error
}

// setAmount writes a new balance conditional on the balance previously read.
func (l *gormLedger) setAmount(ctx context.Context, account *models.Account, amount uint64) error {
	res := l.db.WithContext(ctx).Model(&models.Account{}).
		Where("address = ? AND amount = ?", account.Address, account.Amount).
		Update("amount", amount)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict(fmt.Sprintf("account %s changed concurrently", account.Address))
	}
	account.Amount = amount
	return nil
}
