package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
)

const maxBps = 10000

// PoolKind is the side(s) of the market a pool makes.
type PoolKind uint8

const (
	// PoolKindQuoteOnly holds quote tokens and buys NFTs from traders.
	PoolKindQuoteOnly PoolKind = iota
	// PoolKindAssetOnly holds NFTs and sells them to traders.
	PoolKindAssetOnly
	// PoolKindBoth trades in both directions.
	PoolKindBoth
)

func (k PoolKind) String() string {
	switch k {
	case PoolKindQuoteOnly:
		return "quote_only"
	case PoolKindAssetOnly:
		return "asset_only"
	case PoolKindBoth:
		return "both"
	default:
		return fmt.Sprintf("pool_kind(%d)", uint8(k))
	}
}

func (k PoolKind) Valid() bool {
	return k <= PoolKindBoth
}

// Is reports whether k is one of kinds.
func (k PoolKind) Is(kinds ...PoolKind) bool {
	for _, other := range kinds {
		if k == other {
			return true
		}
	}
	return false
}

func (k PoolKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown pool kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *PoolKind) UnmarshalText(text []byte) error {
	parsed, err := ParsePoolKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePoolKind accepts the textual name or the numeric code of a pool kind.
func ParsePoolKind(s string) (PoolKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quote_only", "quote", "token", "0":
		return PoolKindQuoteOnly, nil
	case "asset_only", "asset", "nft", "1":
		return PoolKindAssetOnly, nil
	case "both", "trade", "2":
		return PoolKindBoth, nil
	}
	return 0, fmt.Errorf("unknown pool kind %q", s)
}

// Pool is a market maker for one NFT collection against one quote asset.
type Pool struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	Address        string     `json:"address" gorm:"uniqueIndex;not null;size:42"`
	Owner          string     `json:"owner" gorm:"not null;size:42;index"`
	AuthorityID    *uint      `json:"authority_id,omitempty" gorm:"index"`
	Collection     string     `json:"collection" gorm:"not null;size:42;index"`
	QuoteAsset     string     `json:"quote_asset" gorm:"not null;size:42"`
	Kind           PoolKind   `json:"kind" gorm:"not null"`
	Curve          curve.Kind `json:"curve" gorm:"not null"`
	Delta          uint64     `json:"delta" gorm:"not null"`
	FeeBps         uint16     `json:"fee_bps" gorm:"not null"`
	SpotPrice      uint64     `json:"spot_price" gorm:"not null"`
	TradeCount     uint64     `json:"trade_count" gorm:"not null"`
	NFTCount       uint32     `json:"nft_count" gorm:"column:nft_count;not null"`
	Active         bool       `json:"active" gorm:"not null;index"`
	HonorRoyalties bool       `json:"honor_royalties" gorm:"not null"`
	QuoteVault     string     `json:"quote_vault" gorm:"not null;size:42"`
	FeeVault       string     `json:"fee_vault" gorm:"not null;size:42"`
	Version        uint64     `json:"version" gorm:"not null"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Authority *PoolAuthority `json:"authority,omitempty" gorm:"foreignKey:AuthorityID"`
}

// TableName returns the table name for Pool model
func (Pool) TableName() string {
	return "pools"
}

// BeforeCreate hook to validate pool data
func (p *Pool) BeforeCreate(tx *gorm.DB) error {
	if len(p.Address) != 42 || len(p.Owner) != 42 || len(p.Collection) != 42 || len(p.QuoteAsset) != 42 {
		return gorm.ErrInvalidData
	}
	if !p.Kind.Valid() || !p.Curve.Valid() || p.FeeBps > maxBps {
		return gorm.ErrInvalidData
	}
	if p.Version == 0 {
		p.Version = 1
	}
	return nil
}

// PoolAuthority collects a protocol fee from the pools that reference it.
// Control moves only through a request/accept handshake.
type PoolAuthority struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	CurrentAuthority string    `json:"current_authority" gorm:"not null;size:42;index"`
	PendingAuthority string    `json:"pending_authority,omitempty" gorm:"size:42"`
	FeeBps           uint16    `json:"fee_bps" gorm:"not null"`
	Version          uint64    `json:"version" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the table name for PoolAuthority model
func (PoolAuthority) TableName() string {
	return "pool_authorities"
}

// BeforeCreate hook to validate authority data
func (a *PoolAuthority) BeforeCreate(tx *gorm.DB) error {
	if len(a.CurrentAuthority) != 42 || a.FeeBps > maxBps {
		return gorm.ErrInvalidData
	}
	if a.Version == 0 {
		a.Version = 1
	}
	return nil
}

// HasPending reports whether a transfer is awaiting acceptance.
func (a *PoolAuthority) HasPending() bool {
	return a.PendingAuthority != ""
}

// AssetRecord tracks one NFT held in escrow by a pool.
type AssetRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	PoolID      uint      `json:"pool_id" gorm:"not null;uniqueIndex:idx_asset_records_pool_mint"`
	Mint        string    `json:"mint" gorm:"not null;size:42;uniqueIndex:idx_asset_records_pool_mint"`
	Collection  string    `json:"collection" gorm:"not null;size:42"`
	Escrow      string    `json:"escrow" gorm:"not null;size:42"`
	Beneficiary string    `json:"beneficiary" gorm:"not null;size:42"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for AssetRecord model
func (AssetRecord) TableName() string {
	return "asset_records"
}

// BeforeCreate hook to validate record data
func (r *AssetRecord) BeforeCreate(tx *gorm.DB) error {
	if r.PoolID == 0 || len(r.Mint) != 42 || len(r.Escrow) != 42 || len(r.Beneficiary) != 42 {
		return gorm.ErrInvalidData
	}
	return nil
}

// Account is a ledger token account holding a single asset.
type Account struct {
	Address   string    `json:"address" gorm:"primaryKey;size:42"`
	Owner     string    `json:"owner" gorm:"not null;size:42;index"`
	Asset     string    `json:"asset" gorm:"not null;size:42;index"`
	Amount    uint64    `json:"amount" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for Account model
func (Account) TableName() string {
	return "ledger_accounts"
}

// AssetMetadata is the registry entry for an NFT or a collection.
type AssetMetadata struct {
	Mint               string         `json:"mint" gorm:"primaryKey;size:42"`
	Name               string         `json:"name" gorm:"size:100"`
	Collection         *string        `json:"collection,omitempty" gorm:"size:42;index"`
	CollectionVerified bool           `json:"collection_verified"`
	CollectionSize     *uint64        `json:"collection_size,omitempty"`
	SellerFeeBps       uint16         `json:"seller_fee_bps"`
	Creators           pq.StringArray `json:"creators" gorm:"type:text[]"`
	Shares             pq.Int64Array  `json:"shares" gorm:"type:integer[]"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// TableName returns the table name for AssetMetadata model
func (AssetMetadata) TableName() string {
	return "asset_metadata"
}

// BeforeCreate hook to validate metadata
func (m *AssetMetadata) BeforeCreate(tx *gorm.DB) error {
	if len(m.Mint) != 42 || m.SellerFeeBps > maxBps || len(m.Creators) != len(m.Shares) {
		return gorm.ErrInvalidData
	}
	return nil
}

// IsCollection reports whether the entry carries collection size details.
func (m *AssetMetadata) IsCollection() bool {
	return m.CollectionSize != nil
}

// OperationType names an exchange operation recorded in history.
type OperationType string

const (
	OperationInitAuthority     OperationType = "init_authority"
	OperationTransferAuthority OperationType = "transfer_authority"
	OperationAcceptAuthority   OperationType = "accept_authority"
	OperationInitPool          OperationType = "init_pool"
	OperationFundQuote         OperationType = "fund_quote"
	OperationFundNFT           OperationType = "fund_nft"
	OperationBuy               OperationType = "buy"
	OperationSell              OperationType = "sell"
	OperationChangeDelta       OperationType = "change_delta"
	OperationChangeFee         OperationType = "change_fee"
	OperationChangeSpotPrice   OperationType = "change_spot_price"
	OperationClosePool         OperationType = "close_pool"
	OperationWithdrawNFT       OperationType = "withdraw_nft"
	OperationWithdrawQuote     OperationType = "withdraw_quote"
	OperationWithdrawFee       OperationType = "withdraw_fee"
)

// TransactionStatus represents the status of a transaction
type TransactionStatus string

const (
	TransactionStatusConfirmed TransactionStatus = "confirmed"
)

// Transaction is one committed pool operation. Rows outlive the pool.
type Transaction struct {
	ID           uint              `json:"id" gorm:"primaryKey"`
	TxHash       string            `json:"tx_hash" gorm:"uniqueIndex;not null;size:66"`
	Caller       string            `json:"caller" gorm:"not null;size:42;index"`
	PoolAddress  string            `json:"pool_address" gorm:"size:42;index"`
	AuthorityID  *uint             `json:"authority_id,omitempty" gorm:"index"`
	Type         OperationType     `json:"type" gorm:"not null;size:32;index"`
	Status       TransactionStatus `json:"status" gorm:"not null;size:20;default:'confirmed'"`
	Mint         string            `json:"mint,omitempty" gorm:"size:42"`
	Counterparty string            `json:"counterparty,omitempty" gorm:"size:42"`
	Amount       decimal.Decimal   `json:"amount" gorm:"type:decimal(36,18)"`
	PoolFee      decimal.Decimal   `json:"pool_fee" gorm:"type:decimal(36,18)"`
	AuthorityFee decimal.Decimal   `json:"authority_fee" gorm:"type:decimal(36,18)"`
	Royalty      decimal.Decimal   `json:"royalty" gorm:"type:decimal(36,18)"`
	SpotBefore   uint64            `json:"spot_before"`
	SpotAfter    uint64            `json:"spot_after"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TableName returns the table name for Transaction model
func (Transaction) TableName() string {
	return "transactions"
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&PoolAuthority{},
		&Pool{},
		&AssetRecord{},
		&Account{},
		&AssetMetadata{},
		&Transaction{},
	}
}
