// Package memory is an in-process Repository. Transactions hold the store
// mutex for their whole body and roll back to a snapshot on error.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/apperr"
	"papertrade/internal/models"
	"papertrade/internal/repository"
)

type state struct {
	walletSeq  uint64
	orderSeq   uint64
	settingSeq uint64

	wallets   map[uint64]models.Wallet
	positions map[string]models.Position
	openKeys  map[string]string
	orders    []models.Order
	orderIDs  map[string]struct{}
	settings  map[string]models.SystemSetting
}

func newState() *state {
	return &state{
		wallets:   map[uint64]models.Wallet{},
		positions: map[string]models.Position{},
		openKeys:  map[string]string{},
		orderIDs:  map[string]struct{}{},
		settings:  map[string]models.SystemSetting{},
	}
}

func (st *state) clone() *state {
	out := &state{
		walletSeq:  st.walletSeq,
		orderSeq:   st.orderSeq,
		settingSeq: st.settingSeq,
		wallets:    make(map[uint64]models.Wallet, len(st.wallets)),
		positions:  make(map[string]models.Position, len(st.positions)),
		openKeys:   make(map[string]string, len(st.openKeys)),
		orders:     append([]models.Order(nil), st.orders...),
		orderIDs:   make(map[string]struct{}, len(st.orderIDs)),
		settings:   make(map[string]models.SystemSetting, len(st.settings)),
	}
	for k, v := range st.wallets {
		out.wallets[k] = v
	}
	for k, v := range st.positions {
		out.positions[k] = v
	}
	for k, v := range st.openKeys {
		out.openKeys[k] = v
	}
	for k := range st.orderIDs {
		out.orderIDs[k] = struct{}{}
	}
	for k, v := range st.settings {
		out.settings[k] = v
	}
	return out
}

type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
	now  func() time.Time
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		mu:  &sync.Mutex{},
		st:  newState(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	tx := &Store{mu: s.mu, st: s.st, inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

// --- wallets ----------------------------------------------------------------

func (s *Store) CreateWalletIfAbsent(_ context.Context, item *models.Wallet) (bool, error) {
	if item == nil {
		return false, nil
	}
	defer s.lock()()
	for _, w := range s.st.wallets {
		if w.OwnerID == item.OwnerID && w.Product == item.Product {
			return false, nil
		}
	}
	s.st.walletSeq++
	now := s.now()
	item.ID = s.st.walletSeq
	item.CreatedAt = now
	item.UpdatedAt = now
	s.st.wallets[item.ID] = *item
	return true, nil
}

func (s *Store) GetWallet(_ context.Context, ownerID uint64, product models.ProductType) (*models.Wallet, error) {
	defer s.lock()()
	for _, w := range s.st.wallets {
		if w.OwnerID == ownerID && w.Product == product {
			out := w
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) GetWalletByID(_ context.Context, id uint64) (*models.Wallet, error) {
	defer s.lock()()
	w, ok := s.st.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *Store) ListWalletsByOwner(_ context.Context, ownerID uint64) ([]models.Wallet, error) {
	defer s.lock()()
	var items []models.Wallet
	for _, w := range s.st.wallets {
		if w.OwnerID == ownerID {
			items = append(items, w)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Product < items[j].Product })
	return items, nil
}

func (s *Store) LockWalletFunds(_ context.Context, id uint64, amount decimal.Decimal) (bool, error) {
	defer s.lock()()
	w, ok := s.st.wallets[id]
	if !ok || w.Available().LessThan(amount) {
		return false, nil
	}
	w.LockedFunds = w.LockedFunds.Add(amount)
	w.UpdatedAt = s.now()
	s.st.wallets[id] = w
	return true, nil
}

func (s *Store) UnlockWalletFunds(_ context.Context, id uint64, amount decimal.Decimal) (bool, error) {
	defer s.lock()()
	w, ok := s.st.wallets[id]
	if !ok || w.LockedFunds.LessThan(amount) {
		return false, nil
	}
	w.LockedFunds = w.LockedFunds.Sub(amount)
	w.UpdatedAt = s.now()
	s.st.wallets[id] = w
	return true, nil
}

func (s *Store) AdjustWalletBalance(_ context.Context, id uint64, delta decimal.Decimal) (bool, error) {
	defer s.lock()()
	w, ok := s.st.wallets[id]
	if !ok {
		return false, nil
	}
	w.Balance = w.Balance.Add(delta)
	w.UpdatedAt = s.now()
	s.st.wallets[id] = w
	return true, nil
}

// --- positions --------------------------------------------------------------

func (s *Store) InsertPosition(_ context.Context, item *models.Position) error {
	if item == nil {
		return nil
	}
	defer s.lock()()
	if _, ok := s.st.positions[item.ID]; ok {
		return apperr.ErrConflict
	}
	key := item.OpenKey()
	if item.Status == models.StatusOpen {
		if _, taken := s.st.openKeys[key]; taken {
			return apperr.ErrConflict
		}
		s.st.openKeys[key] = item.ID
	}
	s.st.positions[item.ID] = *item
	return nil
}

func (s *Store) GetPosition(_ context.Context, id string) (*models.Position, error) {
	defer s.lock()()
	p, ok := s.st.positions[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetPositionForUpdate is GetPosition; the store mutex held by InTx is the row lock.
func (s *Store) GetPositionForUpdate(ctx context.Context, id string) (*models.Position, error) {
	return s.GetPosition(ctx, id)
}

func (s *Store) UpdatePosition(_ context.Context, item *models.Position) error {
	if item == nil {
		return nil
	}
	defer s.lock()()
	cur, ok := s.st.positions[item.ID]
	if !ok || cur.Version != item.Version {
		return apperr.ErrConflict
	}
	next := *item
	// identity and economics are fixed at open.
	next.OwnerID = cur.OwnerID
	next.Symbol = cur.Symbol
	next.Product = cur.Product
	next.Side = cur.Side
	next.Quantity = cur.Quantity
	next.EntryPrice = cur.EntryPrice
	next.Leverage = cur.Leverage
	next.OpenedAt = cur.OpenedAt
	next.Version = cur.Version + 1
	key := cur.OpenKey()
	if cur.Status == models.StatusOpen && next.Status != models.StatusOpen {
		delete(s.st.openKeys, key)
	}
	s.st.positions[item.ID] = next
	item.Version = next.Version
	return nil
}

func (s *Store) FindOpenPosition(_ context.Context, ownerID uint64, product models.ProductType, symbol string, side models.PositionSide) (*models.Position, error) {
	defer s.lock()()
	id, ok := s.st.openKeys[models.OpenKey(ownerID, product, symbol, side)]
	if !ok {
		return nil, nil
	}
	p := s.st.positions[id]
	return &p, nil
}

func (s *Store) ListPositions(_ context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	defer s.lock()()
	products := repository.ProductsFor(params.Product)
	allowed := map[models.ProductType]bool{}
	for _, p := range products {
		allowed[p] = true
	}
	var items []models.Position
	for _, p := range s.st.positions {
		if !allowed[p.Product] {
			continue
		}
		if params.OwnerID != nil && p.OwnerID != *params.OwnerID {
			continue
		}
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" && !strings.EqualFold(p.Symbol, strings.TrimSpace(*params.Symbol)) {
			continue
		}
		items = append(items, p)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].OpenedAt.Equal(items[j].OpenedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].OpenedAt.After(items[j].OpenedAt)
	})
	return page(items, params.Limit, params.Offset, 500), nil
}

// --- orders -----------------------------------------------------------------

func (s *Store) InsertOrder(_ context.Context, item *models.Order) error {
	if item == nil {
		return nil
	}
	defer s.lock()()
	if _, dup := s.st.orderIDs[item.ClientOrderID]; dup {
		return apperr.ErrConflict
	}
	s.st.orderSeq++
	item.ID = s.st.orderSeq
	item.CreatedAt = s.now()
	s.st.orderIDs[item.ClientOrderID] = struct{}{}
	s.st.orders = append(s.st.orders, *item)
	return nil
}

func (s *Store) ListOrders(_ context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	defer s.lock()()
	var items []models.Order
	for i := len(s.st.orders) - 1; i >= 0; i-- {
		o := s.st.orders[i]
		if params.OwnerID != nil && o.OwnerID != *params.OwnerID {
			continue
		}
		if params.PositionID != nil && o.PositionID != *params.PositionID {
			continue
		}
		if params.Since != nil && o.CreatedAt.Before(*params.Since) {
			continue
		}
		items = append(items, o)
	}
	return page(items, params.Limit, params.Offset, 200), nil
}

// --- settings ---------------------------------------------------------------

func (s *Store) UpsertSystemSetting(_ context.Context, item *models.SystemSetting) error {
	if item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	defer s.lock()()
	now := s.now()
	if cur, ok := s.st.settings[item.Key]; ok {
		item.ID = cur.ID
		item.CreatedAt = cur.CreatedAt
	} else {
		s.st.settingSeq++
		item.ID = s.st.settingSeq
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.st.settings[item.Key] = *item
	return nil
}

func (s *Store) GetSystemSettingByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	defer s.lock()()
	item, ok := s.st.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(_ context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	defer s.lock()()
	var items []models.SystemSetting
	for key, item := range s.st.settings {
		if params.Prefix != nil && !strings.HasPrefix(key, strings.TrimSpace(*params.Prefix)) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return page(items, params.Limit, params.Offset, 500), nil
}

func page[T any](items []T, limit, offset, fallback int) []T {
	limit = repository.NormalizeLimit(limit, fallback)
	offset = repository.NormalizeOffset(offset)
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
