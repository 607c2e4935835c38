// Package position is the lifecycle manager of leveraged positions. It is the
// only writer of position rows and moves collateral through the ledger.
package position

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/apperr"
	"papertrade/internal/ledger"
	"papertrade/internal/metrics"
	"papertrade/internal/models"
	"papertrade/internal/oracle"
	"papertrade/internal/repository"
	"papertrade/internal/settings"
)

const liquidationRemarks = "Position liquidated"

// FeatureGate reports runtime feature switches.
type FeatureGate interface {
	IsEnabled(ctx context.Context, key string, fallback bool) bool
}

// Alerter is told about every committed liquidation.
type Alerter interface {
	PositionLiquidated(ctx context.Context, p *models.Position) error
}

type OpenRequest struct {
	OwnerID  uint64
	Symbol   string
	Side     models.OrderSide
	Quantity decimal.Decimal
	Leverage decimal.Decimal
	Product  models.ProductType
}

type Manager struct {
	Params Params
	Repo   repository.Repository
	Ledger *ledger.Ledger
	Oracle oracle.Oracle
	Logger *zap.Logger

	Features FeatureGate
	Alerter  Alerter
	Metrics  *metrics.Metrics

	// SettleOnLiquidation releases collateral and books the realized PnL on
	// liquidation, as close does. When false the collateral stays locked.
	SettleOnLiquidation bool

	Now func() time.Time

	locks *keyedMutex
}

func NewManager(params Params, repo repository.Repository, l *ledger.Ledger, o oracle.Oracle, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		Params:              params,
		Repo:                repo,
		Ledger:              l,
		Oracle:              o,
		Logger:              logger,
		SettleOnLiquidation: true,
		Now:                 func() time.Time { return time.Now().UTC() },
		locks:               newKeyedMutex(),
	}
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

func (m *Manager) lock(key string) func() {
	if m.locks == nil {
		m.locks = newKeyedMutex()
	}
	return m.locks.Lock(key)
}

func (m *Manager) params(product models.ProductType) ProductParams {
	p, _ := m.Params.For(product)
	return p
}

func (m *Manager) validate(req *OpenRequest) error {
	req.Symbol = oracle.NormalizeSymbol(req.Symbol)
	params, ok := m.Params.For(req.Product)
	switch {
	case !ok:
		return errors.Wrapf(apperr.ErrInvalidOrder, "product %q is not a leverage product", req.Product)
	case req.OwnerID == 0:
		return errors.Wrap(apperr.ErrInvalidOrder, "owner id is required")
	case req.Symbol == "":
		return errors.Wrap(apperr.ErrInvalidOrder, "symbol is required")
	case req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell:
		return errors.Wrapf(apperr.ErrInvalidOrder, "side %q", req.Side)
	case !req.Quantity.IsPositive():
		return errors.Wrapf(apperr.ErrInvalidOrder, "quantity %s must be positive", req.Quantity)
	case req.Leverage.LessThan(params.MinLeverage) || req.Leverage.GreaterThan(params.MaxLeverage):
		return errors.Wrapf(apperr.ErrInvalidOrder, "%s leverage %s outside [%s,%s]",
			req.Product, req.Leverage, params.MinLeverage, params.MaxLeverage)
	}
	return nil
}

// Open validates the request, locks collateral in the owner's product wallet
// and records the position with its opening fill. Nothing is locked when any
// step fails.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*models.Position, error) {
	if err := m.validate(&req); err != nil {
		return nil, err
	}
	if m.Features != nil && !m.Features.IsEnabled(ctx, settings.FeatureOpenPositions, true) {
		return nil, errors.Wrap(apperr.ErrInvalidOrder, "opening positions is disabled")
	}
	side := models.PositionSideFor(req.Product, req.Side)
	unlock := m.lock(models.OpenKey(req.OwnerID, req.Product, req.Symbol, side))
	defer unlock()

	price, err := m.Oracle.CurrentPrice(ctx, req.Symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "price %s", req.Symbol)
	}
	params := m.params(req.Product)
	econ := OpenEconomics(req.Product, price, req.Quantity, req.Leverage)
	now := m.now()

	p := &models.Position{
		ID:             uuid.NewString(),
		OwnerID:        req.OwnerID,
		Symbol:         req.Symbol,
		Product:        req.Product,
		Side:           side,
		Status:         models.StatusOpen,
		Quantity:       req.Quantity,
		EntryPrice:     price,
		Leverage:       req.Leverage,
		Collateral:     econ.Collateral,
		BorrowedAmount: econ.Borrowed,
		MarkPrice:      price,
		UnrealizedPnL:  decimal.Zero,
		RealizedPnL:    decimal.Zero,
		MarginRatio:    params.InitialMarginRatio,
		OpenedAt:       now,
		UpdatedAt:      now,
	}
	if req.Product == models.ProductMargin {
		p.InterestRate = params.DailyInterestRate
		p.InterestAccrued = decimal.Zero
		p.InterestAccruedAt = &now
	}

	err = m.Repo.InTx(ctx, func(tx repository.Repository) error {
		wallets := m.Ledger.With(tx)
		wallet, err := wallets.Get(ctx, req.OwnerID, req.Product)
		if err != nil {
			return err
		}
		existing, err := tx.FindOpenPosition(ctx, req.OwnerID, req.Product, req.Symbol, side)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.Wrapf(apperr.ErrInvalidOrder, "open %s position %s already exists for %s", req.Product, existing.ID, req.Symbol)
		}
		if err := wallets.Lock(ctx, wallet.ID, econ.Collateral); err != nil {
			return err
		}
		if err := tx.InsertPosition(ctx, p); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return errors.Wrapf(apperr.ErrInvalidOrder, "open %s position already exists for %s", req.Product, req.Symbol)
			}
			return errors.Wrap(err, "insert position")
		}
		return tx.InsertOrder(ctx, m.fillRecord(p, req.Side, price, models.OrderRemarkOpen, now))
	})
	if err != nil {
		return nil, err
	}

	m.Metrics.Opened(string(p.Product))
	m.Logger.Info("position opened",
		zap.String("position_id", p.ID),
		zap.Uint64("owner_id", p.OwnerID),
		zap.String("symbol", p.Symbol),
		zap.String("product", string(p.Product)),
		zap.String("side", string(p.Side)),
		zap.String("quantity", p.Quantity.String()),
		zap.String("entry_price", p.EntryPrice.String()),
		zap.String("leverage", p.Leverage.String()),
		zap.String("collateral", p.Collateral.String()),
	)
	return p, nil
}

// MarkToMarket recomputes mark price, unrealized PnL and margin ratio at
// price. Crossing the product threshold liquidates the position at price in
// the same transaction. Positions that are no longer OPEN are returned as is.
func (m *Manager) MarkToMarket(ctx context.Context, id string, price decimal.Decimal) (*models.Position, error) {
	if !price.IsPositive() {
		return nil, errors.Wrapf(apperr.ErrInvalidOrder, "mark price %s must be positive", price)
	}
	unlock := m.lock(id)
	defer unlock()

	var (
		out        *models.Position
		liquidated bool
	)
	err := m.Repo.InTx(ctx, func(tx repository.Repository) error {
		p, err := m.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		out = p
		if !p.IsOpen() {
			return nil
		}
		params := m.params(p.Product)
		mark := ComputeMark(p, price, params)
		p.MarkPrice = mark.Price
		p.UnrealizedPnL = mark.UnrealizedPnL
		p.MarginRatio = mark.MarginRatio
		p.UpdatedAt = m.now()
		if !mark.Liquidate {
			return tx.UpdatePosition(ctx, p)
		}
		liquidated = true
		return m.liquidateTx(ctx, tx, p, price)
	})
	if err != nil {
		return nil, m.resolveConflict(ctx, id, err)
	}
	unlock()
	if liquidated {
		m.afterLiquidation(ctx, out)
	}
	return out, nil
}

// Close settles an OPEN position at the current price: collateral is released
// and the realized PnL (net of interest for margin) is booked to the wallet.
func (m *Manager) Close(ctx context.Context, id string, ownerID uint64) (*models.Position, error) {
	unlock := m.lock(id)
	defer unlock()

	current, err := m.load(ctx, m.Repo, id)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != ownerID {
		return nil, errors.Wrapf(apperr.ErrInvalidOrder, "position %s does not belong to owner %d", id, ownerID)
	}
	if !current.IsOpen() {
		return nil, notOpenErr(current)
	}
	exit, err := m.Oracle.CurrentPrice(ctx, current.Symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "price %s", current.Symbol)
	}

	var out *models.Position
	err = m.Repo.InTx(ctx, func(tx repository.Repository) error {
		p, err := m.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return notOpenErr(p)
		}
		now := m.now()
		realized := RealizedPnL(p, exit)
		p.Status = models.StatusClosed
		p.ExitPrice = &exit
		p.MarkPrice = exit
		p.RealizedPnL = realized
		p.UnrealizedPnL = decimal.Zero
		p.ClosedAt = &now
		p.UpdatedAt = now
		if err := tx.UpdatePosition(ctx, p); err != nil {
			return err
		}
		if err := m.settle(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return tx.InsertOrder(ctx, m.fillRecord(p, p.Side.OrderSide().Opposite(), exit, models.OrderRemarkClose, now))
	})
	if err != nil {
		return nil, m.resolveConflict(ctx, id, err)
	}

	m.Metrics.Closed(string(out.Product))
	m.Logger.Info("position closed",
		zap.String("position_id", out.ID),
		zap.Uint64("owner_id", out.OwnerID),
		zap.String("symbol", out.Symbol),
		zap.String("product", string(out.Product)),
		zap.String("exit_price", exit.String()),
		zap.String("realized_pnl", out.RealizedPnL.String()),
	)
	return out, nil
}

// Liquidate force-closes a position at the current price. It is a no-op on a
// position that already left OPEN.
func (m *Manager) Liquidate(ctx context.Context, id string) (*models.Position, error) {
	unlock := m.lock(id)
	defer unlock()

	current, err := m.load(ctx, m.Repo, id)
	if err != nil {
		return nil, err
	}
	if !current.IsOpen() {
		return current, nil
	}
	exit, err := m.Oracle.CurrentPrice(ctx, current.Symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "price %s", current.Symbol)
	}

	var (
		out        *models.Position
		liquidated bool
	)
	err = m.Repo.InTx(ctx, func(tx repository.Repository) error {
		p, err := m.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		out = p
		if !p.IsOpen() {
			return nil
		}
		p.MarkPrice = exit
		p.UnrealizedPnL = UnrealizedPnL(p, exit)
		p.MarginRatio = MarginRatio(p, p.UnrealizedPnL, m.params(p.Product))
		liquidated = true
		return m.liquidateTx(ctx, tx, p, exit)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// the concurrent writer left the row; report its state.
			return m.load(ctx, m.Repo, id)
		}
		return nil, err
	}
	unlock()
	if liquidated {
		m.afterLiquidation(ctx, out)
	}
	return out, nil
}

func (m *Manager) liquidateTx(ctx context.Context, tx repository.Repository, p *models.Position, exit decimal.Decimal) error {
	now := m.now()
	p.Status = models.StatusLiquidated
	p.ExitPrice = &exit
	p.RealizedPnL = RealizedPnL(p, exit)
	p.ClosedAt = &now
	p.UpdatedAt = now
	p.Remarks = liquidationRemarks
	if err := tx.UpdatePosition(ctx, p); err != nil {
		return err
	}
	if m.SettleOnLiquidation {
		if err := m.settle(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.InsertOrder(ctx, m.fillRecord(p, p.Side.OrderSide().Opposite(), exit, models.OrderRemarkLiquidation, now))
}

func (m *Manager) afterLiquidation(ctx context.Context, p *models.Position) {
	m.Metrics.Liquidated(string(p.Product))
	fields := []zap.Field{
		zap.String("position_id", p.ID),
		zap.Uint64("owner_id", p.OwnerID),
		zap.String("symbol", p.Symbol),
		zap.String("product", string(p.Product)),
		zap.String("margin_ratio", p.MarginRatio.String()),
		zap.String("realized_pnl", p.RealizedPnL.String()),
	}
	if p.ExitPrice != nil {
		fields = append(fields, zap.String("exit_price", p.ExitPrice.String()))
	}
	m.Logger.Warn("position liquidated", fields...)
	if !m.SettleOnLiquidation {
		m.Logger.Warn("liquidation left collateral locked",
			zap.String("position_id", p.ID),
			zap.String("collateral", p.Collateral.String()),
		)
	}
	if m.Alerter != nil {
		_ = m.Alerter.PositionLiquidated(ctx, p)
	}
}

// settle releases the collateral of p and books its realized PnL.
func (m *Manager) settle(ctx context.Context, tx repository.Repository, p *models.Position) error {
	wallets := m.Ledger.With(tx)
	wallet, err := wallets.Get(ctx, p.OwnerID, p.Product)
	if err != nil {
		return err
	}
	return wallets.Settle(ctx, wallet.ID, p.Collateral, p.RealizedPnL)
}

// AccrueInterest books whole days of interest on an open margin position
// since it last accrued. Interest that drops the ratio below maintenance
// liquidates the position at its last mark price in the same transaction.
// Other positions are returned unchanged.
func (m *Manager) AccrueInterest(ctx context.Context, id string, now time.Time) (*models.Position, error) {
	unlock := m.lock(id)
	defer unlock()

	var (
		out        *models.Position
		days       int64
		liquidated bool
	)
	err := m.Repo.InTx(ctx, func(tx repository.Repository) error {
		p, err := m.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		out = p
		if !p.IsOpen() || p.Product != models.ProductMargin {
			return nil
		}
		from := p.OpenedAt
		if p.InterestAccruedAt != nil {
			from = *p.InterestAccruedAt
		}
		days = int64(now.Sub(from) / (24 * time.Hour))
		if days <= 0 {
			return nil
		}
		accruedAt := from.Add(time.Duration(days) * 24 * time.Hour)
		p.InterestAccrued = p.InterestAccrued.Add(DailyInterest(p.BorrowedAmount, p.InterestRate, days))
		p.InterestAccruedAt = &accruedAt
		params := m.params(p.Product)
		p.MarginRatio = MarginRatio(p, p.UnrealizedPnL, params)
		p.UpdatedAt = m.now()
		if !ShouldLiquidate(p.Product, p.MarginRatio, params) {
			return tx.UpdatePosition(ctx, p)
		}
		liquidated = true
		return m.liquidateTx(ctx, tx, p, p.MarkPrice)
	})
	if err != nil {
		return nil, m.resolveConflict(ctx, id, err)
	}
	unlock()
	if liquidated {
		m.afterLiquidation(ctx, out)
	}
	if days > 0 {
		m.Metrics.InterestAccrued()
		m.Logger.Debug("margin interest accrued",
			zap.String("position_id", out.ID),
			zap.Int64("days", days),
			zap.String("interest_accrued", out.InterestAccrued.String()),
		)
	}
	return out, nil
}

// AccrueAllInterest runs AccrueInterest over every open margin position.
// Failures are logged per position and do not stop the run.
func (m *Manager) AccrueAllInterest(ctx context.Context, now time.Time) (int, error) {
	product := models.ProductMargin
	items, err := m.listAll(ctx, repository.ListPositionsParams{Product: &product, Status: statusPtr(models.StatusOpen)})
	if err != nil {
		return 0, err
	}
	accrued := 0
	for i := range items {
		before := items[i].InterestAccrued
		p, err := m.AccrueInterest(ctx, items[i].ID, now)
		if err != nil {
			m.Logger.Warn("interest accrual failed", zap.String("position_id", items[i].ID), zap.Error(err))
			continue
		}
		if !p.InterestAccrued.Equal(before) {
			accrued++
		}
	}
	return accrued, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Position, error) {
	return m.load(ctx, m.Repo, id)
}

func (m *Manager) ListByOwner(ctx context.Context, ownerID uint64, product *models.ProductType, status *models.PositionStatus) ([]models.Position, error) {
	return m.listAll(ctx, repository.ListPositionsParams{OwnerID: &ownerID, Product: product, Status: status})
}

// ListOpen returns every OPEN position across both products.
func (m *Manager) ListOpen(ctx context.Context) ([]models.Position, error) {
	return m.listAll(ctx, repository.ListPositionsParams{Status: statusPtr(models.StatusOpen)})
}

func (m *Manager) listAll(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	const pageSize = 500
	var out []models.Position
	for offset := 0; ; offset += pageSize {
		params.Limit = pageSize
		params.Offset = offset
		items, err := m.Repo.ListPositions(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) < pageSize {
			return out, nil
		}
	}
}

func (m *Manager) load(ctx context.Context, repo repository.Repository, id string) (*models.Position, error) {
	id = strings.TrimSpace(id)
	p, err := repo.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.Wrapf(apperr.ErrNotFound, "position %s", id)
	}
	return p, nil
}

func (m *Manager) loadForUpdate(ctx context.Context, tx repository.Repository, id string) (*models.Position, error) {
	id = strings.TrimSpace(id)
	p, err := tx.GetPositionForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.Wrapf(apperr.ErrNotFound, "position %s", id)
	}
	return p, nil
}

// resolveConflict turns a lost version check into the caller-visible error of
// the state the winner left behind.
func (m *Manager) resolveConflict(ctx context.Context, id string, err error) error {
	if !errors.Is(err, apperr.ErrConflict) {
		return err
	}
	p, lerr := m.load(ctx, m.Repo, id)
	if lerr != nil {
		return lerr
	}
	if !p.IsOpen() {
		return notOpenErr(p)
	}
	return err
}

func notOpenErr(p *models.Position) error {
	if p.Status == models.StatusLiquidated {
		return fmt.Errorf("%w: %w: position %s", apperr.ErrInvalidOrder, apperr.ErrLiquidationOccurred, p.ID)
	}
	return errors.Wrapf(apperr.ErrInvalidOrder, "position %s is %s", p.ID, p.Status)
}

func (m *Manager) fillRecord(p *models.Position, side models.OrderSide, price decimal.Decimal, remarks string, at time.Time) *models.Order {
	return &models.Order{
		ClientOrderID:  uuid.NewString(),
		OwnerID:        p.OwnerID,
		PositionID:     p.ID,
		Symbol:         p.Symbol,
		Side:           side,
		OrderType:      models.OrderTypeMarket,
		Status:         models.OrderStatusFilled,
		Product:        p.Product,
		Quantity:       p.Quantity,
		Price:          price,
		FilledQuantity: p.Quantity,
		AveragePrice:   price,
		Leverage:       p.Leverage,
		Commission:     decimal.Zero,
		Remarks:        remarks,
		FilledAt:       at,
	}
}

func statusPtr(s models.PositionStatus) *models.PositionStatus {
	return &s
}
