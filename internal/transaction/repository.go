package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

// TransactionRepository interface defines operation history database operations
type TransactionRepository interface {
	WithTx(tx *gorm.DB) TransactionRepository
	Create(ctx context.Context, transaction *models.Transaction) error
	GetByTxHash(ctx context.Context, txHash string) (*models.Transaction, error)
	GetByCaller(ctx context.Context, caller string, limit, offset int) ([]*models.Transaction, error)
	GetByPool(ctx context.Context, poolAddress string, limit, offset int) ([]*models.Transaction, error)
	GetByType(ctx context.Context, opType models.OperationType, limit, offset int) ([]*models.Transaction, error)
	GetRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error)
	GetTransactionsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Transaction, error)
	GetCallerTransactionCount(ctx context.Context, caller string) (int64, error)
	GetPoolTradeVolume(ctx context.Context, poolAddress string, since time.Time) (decimal.Decimal, error)
}

// transactionRepository implements TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) WithTx(tx *gorm.DB) TransactionRepository {
	return &transactionRepository{db: tx}
}

// Create records a committed operation
func (r *transactionRepository) Create(ctx context.Context, transaction *models.Transaction) error {
	if transaction == nil {
		return errors.New("transaction cannot be nil")
	}
	if transaction.TxHash == "" {
		transaction.TxHash = NewTxHash()
	}
	if transaction.Status == "" {
		transaction.Status = models.TransactionStatusConfirmed
	}
	return r.db.WithContext(ctx).Create(transaction).Error
}

// GetByTxHash retrieves a transaction by its hash
func (r *transactionRepository) GetByTxHash(ctx context.Context, txHash string) (*models.Transaction, error) {
	if txHash == "" {
		return nil, errors.New("txHash cannot be empty")
	}

	var transaction models.Transaction
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// GetByCaller retrieves transactions submitted by an address
func (r *transactionRepository) GetByCaller(ctx context.Context, caller string, limit, offset int) ([]*models.Transaction, error) {
	if caller == "" {
		return nil, errors.New("caller cannot be empty")
	}

	var transactions []*models.Transaction
	err := r.db.WithContext(ctx).Where("caller = ?", caller).
		Order("id DESC").Limit(limit).Offset(offset).Find(&transactions).Error
	return transactions, err
}

// GetByPool retrieves a pool's history, newest first
func (r *transactionRepository) GetByPool(ctx context.Context, poolAddress string, limit, offset int) ([]*models.Transaction, error) {
	if poolAddress == "" {
		return nil, errors.New("pool address cannot be empty")
	}

	var transactions []*models.Transaction
	err := r.db.WithContext(ctx).Where("pool_address = ?", poolAddress).
		Order("id DESC").Limit(limit).Offset(offset).Find(&transactions).Error
	return transactions, err
}

// GetByType retrieves transactions by operation type
func (r *transactionRepository) GetByType(ctx context.Context, opType models.OperationType, limit, offset int) ([]*models.Transaction, error) {
	if opType == "" {
		return nil, errors.New("type cannot be empty")
	}
	var transactions []*models.Transaction
	err := r.db.WithContext(ctx).Where("type = ?", opType).
		Order("id DESC").Limit(limit).Offset(offset).Find(&transactions).Error
	return transactions, err
}

// GetRecentTransactions retrieves recent transactions
func (r *transactionRepository) GetRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&transactions).Error
	return transactions, err
}

// GetTransactionsByDateRange retrieves transactions within a date range
func (r *transactionRepository) GetTransactionsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", start, end).
		Order("id DESC").Find(&transactions).Error
	return transactions, err
}

// GetCallerTransactionCount gets the total number of operations by a caller
func (r *transactionRepository) GetCallerTransactionCount(ctx context.Context, caller string) (int64, error) {
	if caller == "" {
		return 0, errors.New("caller cannot be empty")
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("caller = ?", caller).Count(&count).Error
	return count, err
}

// GetPoolTradeVolume sums the notional of buys and sells on a pool since a given time
func (r *transactionRepository) GetPoolTradeVolume(ctx context.Context, poolAddress string, since time.Time) (decimal.Decimal, error) {
	if poolAddress == "" {
		return decimal.Zero, errors.New("pool address cannot be empty")
	}

	var result struct {
		TotalVolume string
	}

	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0) as total_volume").
		Where("pool_address = ? AND created_at >= ? AND status = ? AND type IN ?",
			poolAddress, since, models.TransactionStatusConfirmed,
			[]models.OperationType{models.OperationBuy, models.OperationSell}).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromString(result.TotalVolume)
}
