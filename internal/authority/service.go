// Package authority manages the protocol fee records pools register under.
package authority

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/fees"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/metrics"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/transaction"
)

// Service defines pool authority operations
type Service interface {
	Initialize(ctx context.Context, caller common.Address, feeBps uint16) (*models.PoolAuthority, error)
	RequestTransfer(ctx context.Context, caller common.Address, id uint, proposed common.Address) (*models.PoolAuthority, error)
	AcceptTransfer(ctx context.Context, caller common.Address, id uint) (*models.PoolAuthority, error)
	Get(ctx context.Context, id uint) (*models.PoolAuthority, error)
	ListByAuthority(ctx context.Context, current common.Address) ([]*models.PoolAuthority, error)
}

type service struct {
	db      *gorm.DB
	repo    AuthorityRepository
	history transaction.TransactionRepository
	log     *logrus.Entry
}

// NewService creates a new authority service
func NewService(db *gorm.DB, repo AuthorityRepository, history transaction.TransactionRepository) Service {
	return &service{
		db:      db,
		repo:    repo,
		history: history,
		log:     logrus.WithField("component", "authority"),
	}
}

func (s *service) Initialize(ctx context.Context, caller common.Address, feeBps uint16) (_ *models.PoolAuthority, err error) {
	defer observe(models.OperationInitAuthority, time.Now(), &err)

	if caller == (common.Address{}) {
		return nil, apperrors.Validation("caller is required")
	}
	if err := fees.ValidateBps(feeBps); err != nil {
		return nil, err
	}

	authority := &models.PoolAuthority{CurrentAuthority: caller.Hex(), FeeBps: feeBps}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, authority); err != nil {
			return err
		}
		return s.record(ctx, tx, caller, authority, models.OperationInitAuthority, "")
	})
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	s.log.WithFields(logrus.Fields{"authority_id": authority.ID, "fee_bps": feeBps}).Info("Authority initialized")
	return authority, nil
}

func (s *service) RequestTransfer(ctx context.Context, caller common.Address, id uint, proposed common.Address) (_ *models.PoolAuthority, err error) {
	defer observe(models.OperationTransferAuthority, time.Now(), &err)

	if proposed == (common.Address{}) {
		return nil, apperrors.Validation("proposed authority is required")
	}

	var authority *models.PoolAuthority
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if current.CurrentAuthority != caller.Hex() {
			return apperrors.Authorization(fmt.Sprintf("%s is not the current authority of %d", caller.Hex(), id))
		}

		current.PendingAuthority = proposed.Hex()
		if err := repo.Update(ctx, current); err != nil {
			return err
		}
		authority = current
		return s.record(ctx, tx, caller, current, models.OperationTransferAuthority, proposed.Hex())
	})
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	s.log.WithFields(logrus.Fields{"authority_id": id, "pending": proposed.Hex()}).Info("Authority transfer requested")
	return authority, nil
}

func (s *service) AcceptTransfer(ctx context.Context, caller common.Address, id uint) (_ *models.PoolAuthority, err error) {
	defer observe(models.OperationAcceptAuthority, time.Now(), &err)

	var authority *models.PoolAuthority
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if !current.HasPending() || current.PendingAuthority != caller.Hex() {
			return apperrors.Authorization(fmt.Sprintf("%s is not the pending authority of %d", caller.Hex(), id))
		}

		previous := current.CurrentAuthority
		current.CurrentAuthority = caller.Hex()
		current.PendingAuthority = ""
		if err := repo.Update(ctx, current); err != nil {
			return err
		}
		authority = current
		return s.record(ctx, tx, caller, current, models.OperationAcceptAuthority, previous)
	})
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	s.log.WithFields(logrus.Fields{"authority_id": id, "current": caller.Hex()}).Info("Authority transfer accepted")
	return authority, nil
}

func (s *service) Get(ctx context.Context, id uint) (*models.PoolAuthority, error) {
	return s.load(ctx, s.repo, id)
}

func (s *service) ListByAuthority(ctx context.Context, current common.Address) ([]*models.PoolAuthority, error) {
	return s.repo.ListByCurrent(ctx, current.Hex())
}

func (s *service) load(ctx context.Context, repo AuthorityRepository, id uint) (*models.PoolAuthority, error) {
	if id == 0 {
		return nil, apperrors.Validation("authority id is required")
	}
	authority, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if authority == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("authority %d not found", id))
	}
	return authority, nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, caller common.Address, authority *models.PoolAuthority, op models.OperationType, counterparty string) error {
	id := authority.ID
	return s.history.WithTx(tx).Create(ctx, &models.Transaction{
		Caller:       caller.Hex(),
		AuthorityID:  &id,
		Type:         op,
		Counterparty: counterparty,
	})
}

func observe(op models.OperationType, start time.Time, err *error) {
	metrics.Observe(string(op), start, *err)
}
