// Package risk re-marks every open position on a schedule and reports per
// owner risk.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/config"
	"papertrade/internal/metrics"
	"papertrade/internal/models"
	"papertrade/internal/oracle"
	"papertrade/internal/settings"
)

// Positions is the part of the lifecycle manager the monitor drives. The
// monitor never writes position rows itself.
type Positions interface {
	ListOpen(ctx context.Context) ([]models.Position, error)
	ListByOwner(ctx context.Context, ownerID uint64, product *models.ProductType, status *models.PositionStatus) ([]models.Position, error)
	MarkToMarket(ctx context.Context, id string, price decimal.Decimal) (*models.Position, error)
}

type Wallets interface {
	ListByOwner(ctx context.Context, ownerID uint64) ([]models.Wallet, error)
}

type FeatureGate interface {
	IsEnabled(ctx context.Context, key string, fallback bool) bool
}

type Monitor struct {
	Positions Positions
	Wallets   Wallets
	Oracle    oracle.Oracle
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Flags     FeatureGate

	Workers        int
	HighRiskCutoff decimal.Decimal
}

func NewMonitor(cfg config.RiskConfig, positions Positions, wallets Wallets, o oracle.Oracle, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cutoff := decimal.NewFromFloat(cfg.HighRiskCutoff)
	if !cutoff.IsPositive() {
		cutoff = defaultHighRiskCutoff
	}
	return &Monitor{
		Positions:      positions,
		Wallets:        wallets,
		Oracle:         o,
		Logger:         logger,
		Workers:        cfg.SweepWorkers,
		HighRiskCutoff: cutoff,
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked    int           `json:"checked"`
	Liquidated int           `json:"liquidated"`
	Failed     int           `json:"failed"`
	Skipped    bool          `json:"skipped"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Run sweeps every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if m == nil || m.Positions == nil {
		return nil
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil {
			m.Logger.Warn("risk sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce marks every open position at the current price. A failure on one
// position is logged and counted; the others are still processed. Only a
// failure to list positions is returned.
func (m *Monitor) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if m == nil || m.Positions == nil {
		return res, nil
	}
	if m.Flags != nil && !m.Flags.IsEnabled(ctx, settings.FeatureRiskMonitor, true) {
		res.Skipped = true
		return res, nil
	}
	start := time.Now()
	items, err := m.Positions.ListOpen(ctx)
	if err != nil {
		return res, errors.Wrap(err, "list open positions")
	}

	prices := newPriceBook(m.Oracle)
	jobs := make(chan models.Position)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	workers := m.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(items) {
		workers = len(items)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				outcome := m.check(ctx, prices, p)
				mu.Lock()
				switch outcome {
				case outcomeFailed:
					res.Failed++
				case outcomeLiquidated:
					res.Checked++
					res.Liquidated++
				default:
					res.Checked++
				}
				mu.Unlock()
			}
		}()
	}
	for _, p := range items {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	res.Elapsed = time.Since(start)
	m.Metrics.ObserveSweep(res.Elapsed, res.Checked)
	if len(items) > 0 {
		m.Logger.Info("risk sweep done",
			zap.Int("open", len(items)),
			zap.Int("checked", res.Checked),
			zap.Int("liquidated", res.Liquidated),
			zap.Int("failed", res.Failed),
			zap.Duration("elapsed", res.Elapsed),
		)
	}
	return res, nil
}

type outcome int

const (
	outcomeMarked outcome = iota
	outcomeLiquidated
	outcomeFailed
)

func (m *Monitor) check(ctx context.Context, prices *priceBook, p models.Position) outcome {
	price, err := prices.get(ctx, p.Symbol)
	if err != nil {
		m.Metrics.SweepFailure("price")
		m.Logger.Warn("risk sweep price failed",
			zap.String("position_id", p.ID),
			zap.String("symbol", p.Symbol),
			zap.Error(err),
		)
		return outcomeFailed
	}
	updated, err := m.Positions.MarkToMarket(ctx, p.ID, price)
	if err != nil {
		m.Metrics.SweepFailure("mark")
		m.Logger.Warn("risk sweep mark failed",
			zap.String("position_id", p.ID),
			zap.String("symbol", p.Symbol),
			zap.String("price", price.String()),
			zap.Error(err),
		)
		return outcomeFailed
	}
	if updated != nil && updated.Status == models.StatusLiquidated && p.Status == models.StatusOpen {
		return outcomeLiquidated
	}
	return outcomeMarked
}

// priceBook fetches each symbol at most once per sweep.
type priceBook struct {
	oracle oracle.Oracle
	mu     sync.Mutex
	quotes map[string]*quote
}

type quote struct {
	once  sync.Once
	price decimal.Decimal
	err   error
}

func newPriceBook(o oracle.Oracle) *priceBook {
	return &priceBook{oracle: o, quotes: map[string]*quote{}}
}

func (b *priceBook) get(ctx context.Context, symbol string) (decimal.Decimal, error) {
	b.mu.Lock()
	q, ok := b.quotes[symbol]
	if !ok {
		q = &quote{}
		b.quotes[symbol] = q
	}
	b.mu.Unlock()
	q.once.Do(func() {
		if b.oracle == nil {
			q.err = errors.New("no price oracle configured")
			return
		}
		q.price, q.err = b.oracle.CurrentPrice(ctx, symbol)
	})
	return q.price, q.err
}
