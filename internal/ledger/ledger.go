// Package ledger is the wallet ledger: per-owner, per-product paper balances
// with collateral locked against open positions.
package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/apperr"
	"papertrade/internal/config"
	"papertrade/internal/metrics"
	"papertrade/internal/models"
	"papertrade/internal/repository"
)

// Config enumerates the capital seeded into each wallet type at provisioning.
type Config struct {
	InitialCapital map[models.ProductType]decimal.Decimal
}

func ConfigFrom(cfg config.AccountsConfig) Config {
	return Config{InitialCapital: map[models.ProductType]decimal.Decimal{
		models.ProductSpot:    decimal.NewFromFloat(cfg.InitialCapital.Spot),
		models.ProductMargin:  decimal.NewFromFloat(cfg.InitialCapital.Margin),
		models.ProductFutures: decimal.NewFromFloat(cfg.InitialCapital.Futures),
		models.ProductOptions: decimal.NewFromFloat(cfg.InitialCapital.Options),
	}}
}

type Ledger struct {
	Config  Config
	Repo    repository.Repository
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func New(repo repository.Repository, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{Config: cfg, Repo: repo, Logger: logger, Metrics: m}
}

// With returns a ledger bound to repo, typically a transaction.
func (l *Ledger) With(repo repository.Repository) *Ledger {
	cp := *l
	cp.Repo = repo
	return &cp
}

// Provision creates one wallet per product for owner. Existing wallets are
// left untouched, so repeated calls are safe.
func (l *Ledger) Provision(ctx context.Context, ownerID uint64) ([]models.Wallet, error) {
	if ownerID == 0 {
		return nil, errors.Wrap(apperr.ErrInvalidOrder, "owner id is required")
	}
	err := l.Repo.InTx(ctx, func(tx repository.Repository) error {
		for _, product := range models.WalletProducts {
			w := &models.Wallet{
				OwnerID: ownerID,
				Product: product,
				Balance: l.Config.InitialCapital[product],
			}
			created, err := tx.CreateWalletIfAbsent(ctx, w)
			if err != nil {
				return errors.Wrapf(err, "create %s wallet", product)
			}
			if created {
				l.Logger.Info("wallet provisioned",
					zap.Uint64("owner_id", ownerID),
					zap.String("product", string(product)),
					zap.String("balance", w.Balance.String()),
				)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.ListByOwner(ctx, ownerID)
}

func (l *Ledger) Get(ctx context.Context, ownerID uint64, product models.ProductType) (*models.Wallet, error) {
	w, err := l.Repo.GetWallet(ctx, ownerID, product)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errors.Wrapf(apperr.ErrNotFound, "%s wallet for owner %d", product, ownerID)
	}
	return w, nil
}

func (l *Ledger) GetByID(ctx context.Context, walletID uint64) (*models.Wallet, error) {
	w, err := l.Repo.GetWalletByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errors.Wrapf(apperr.ErrNotFound, "wallet %d", walletID)
	}
	return w, nil
}

// ListByOwner returns every wallet of owner; NotFound when none was provisioned.
func (l *Ledger) ListByOwner(ctx context.Context, ownerID uint64) ([]models.Wallet, error) {
	items, err := l.Repo.ListWalletsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.Wrapf(apperr.ErrNotFound, "wallets for owner %d", ownerID)
	}
	return items, nil
}

// Lock reserves amount of the available balance.
func (l *Ledger) Lock(ctx context.Context, walletID uint64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.Wrapf(apperr.ErrInvalidOrder, "lock amount %s is negative", amount)
	}
	ok, err := l.Repo.LockWalletFunds(ctx, walletID, amount)
	if err != nil {
		return errors.Wrapf(err, "lock wallet %d", walletID)
	}
	if ok {
		return nil
	}
	w, err := l.GetByID(ctx, walletID)
	if err != nil {
		return err
	}
	l.Metrics.LockRejected()
	return errors.Wrapf(apperr.ErrInsufficientBalance, "wallet %d available %s < %s", walletID, w.Available(), amount)
}

// Unlock releases amount of locked funds. Releasing more than is locked is
// refused with ErrInsufficientBalance.
func (l *Ledger) Unlock(ctx context.Context, walletID uint64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.Wrapf(apperr.ErrInvalidOrder, "unlock amount %s is negative", amount)
	}
	ok, err := l.Repo.UnlockWalletFunds(ctx, walletID, amount)
	if err != nil {
		return errors.Wrapf(err, "unlock wallet %d", walletID)
	}
	if ok {
		return nil
	}
	w, err := l.GetByID(ctx, walletID)
	if err != nil {
		return err
	}
	return errors.Wrapf(apperr.ErrInsufficientBalance, "wallet %d locked %s < %s", walletID, w.LockedFunds, amount)
}

// AdjustBalance adds delta to the balance. No floor is enforced.
func (l *Ledger) AdjustBalance(ctx context.Context, walletID uint64, delta decimal.Decimal) error {
	ok, err := l.Repo.AdjustWalletBalance(ctx, walletID, delta)
	if err != nil {
		return errors.Wrapf(err, "adjust wallet %d", walletID)
	}
	if !ok {
		return errors.Wrapf(apperr.ErrNotFound, "wallet %d", walletID)
	}
	return nil
}

func (l *Ledger) HasSufficientBalance(ctx context.Context, walletID uint64, amount decimal.Decimal) (bool, error) {
	w, err := l.GetByID(ctx, walletID)
	if err != nil {
		return false, err
	}
	return w.Available().GreaterThanOrEqual(amount), nil
}

// Settle releases collateral and applies realized PnL in one step, as done
// when a position leaves OPEN.
func (l *Ledger) Settle(ctx context.Context, walletID uint64, collateral, realizedPnL decimal.Decimal) error {
	if err := l.Unlock(ctx, walletID, collateral); err != nil {
		return err
	}
	if realizedPnL.IsZero() {
		return nil
	}
	return l.AdjustBalance(ctx, walletID, realizedPnL)
}
