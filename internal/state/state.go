// Package state owns the in-memory view of the ledger. Every mutation writes
// through a repository and then reloads the affected list from storage, so
// the cache only ever holds data that was read back from the database.
package state

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// DefaultTransactionLimit bounds how many recent transactions are cached.
const DefaultTransactionLimit = 100

type CategoryRepository interface {
	List(ctx context.Context) ([]core.Category, error)
	Create(ctx context.Context, c core.Category) (core.Category, error)
	Update(ctx context.Context, id string, p core.CategoryPatch) error
	Delete(ctx context.Context, id string) error
}

type PaymentMethodRepository interface {
	List(ctx context.Context) ([]core.PaymentMethod, error)
	Create(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error)
	Update(ctx context.Context, id string, p core.PaymentMethodPatch) error
	Delete(ctx context.Context, id string) error
}

type TransactionRepository interface {
	ListWithDetails(ctx context.Context, limit int) ([]core.TransactionWithDetails, error)
	Create(ctx context.Context, t core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, id string, p core.TransactionPatch) error
	Delete(ctx context.Context, id string) error
}

type RecurringRepository interface {
	List(ctx context.Context) ([]core.RecurringTransaction, error)
	Create(ctx context.Context, r core.RecurringTransaction) (core.RecurringTransaction, error)
	Update(ctx context.Context, id string, p core.RecurringPatch) error
	Delete(ctx context.Context, id string) error
}

type SettingsRepository interface {
	PrimaryCurrency(ctx context.Context) (currency.Code, error)
	SetPrimaryCurrency(ctx context.Context, c currency.Code) error
}

// Repositories groups the persistence collaborators of a State.
type Repositories struct {
	Categories     CategoryRepository
	PaymentMethods PaymentMethodRepository
	Transactions   TransactionRepository
	Recurring      RecurringRepository
	Settings       SettingsRepository
}

// FromStore wires every repository of an opened SQLite store.
func FromStore(s *storage.Store) Repositories {
	return Repositories{
		Categories:     s.Categories(),
		PaymentMethods: s.PaymentMethods(),
		Transactions:   s.Transactions(),
		Recurring:      s.Recurring(),
		Settings:       s.Settings(),
	}
}

// Snapshot is a copy of the cache; callers may keep and modify it.
type Snapshot struct {
	Initialized           bool                          `json:"isInitialized"`
	PrimaryCurrency       currency.Code                 `json:"primaryCurrency"`
	Categories            []core.Category               `json:"categories"`
	PaymentMethods        []core.PaymentMethod          `json:"paymentMethods"`
	Transactions          []core.TransactionWithDetails `json:"transactions"`
	RecurringTransactions []core.RecurringTransaction   `json:"recurringTransactions"`
	TransactionLimit      int                           `json:"transactionLimit"`
	Version               uint64                        `json:"version"`
}

type State struct {
	repos  Repositories
	logger *log.Logger

	// ops serialises each action so a write and its reload are never
	// interleaved with another action.
	ops sync.Mutex

	mu   sync.RWMutex
	snap Snapshot
}

type Option func(*State)

func WithLogger(l *log.Logger) Option {
	return func(s *State) { s.logger = l.WithComponent(log.ComponentState) }
}

// WithTransactionLimit changes how many transactions Initialize loads.
func WithTransactionLimit(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.snap.TransactionLimit = n
		}
	}
}

func New(repos Repositories, opts ...Option) *State {
	s := &State{
		repos:  repos,
		logger: log.FromContext(context.Background()).WithComponent(log.ComponentState),
		snap: Snapshot{
			PrimaryCurrency:  currency.Reference,
			TransactionLimit: DefaultTransactionLimit,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the cached lists.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Categories = slices.Clone(s.snap.Categories)
	out.PaymentMethods = slices.Clone(s.snap.PaymentMethods)
	out.Transactions = slices.Clone(s.snap.Transactions)
	out.RecurringTransactions = slices.Clone(s.snap.RecurringTransactions)
	return out
}

// Version increases every time a cached list is replaced.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Version
}

func (s *State) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Initialized
}

func (s *State) PrimaryCurrency() currency.Code {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.PrimaryCurrency
}

// Category looks up a cached category by id.
func (s *State) Category(id string) (core.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.snap.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

// RecurringTransaction looks up a cached recurring template by id.
func (s *State) RecurringTransaction(id string) (core.RecurringTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rt := range s.snap.RecurringTransactions {
		if rt.ID == id {
			return rt, true
		}
	}
	return core.RecurringTransaction{}, false
}

// PaymentMethod looks up a cached payment method by id.
func (s *State) PaymentMethod(id string) (core.PaymentMethod, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.snap.PaymentMethods {
		if p.ID == id {
			return p, true
		}
	}
	return core.PaymentMethod{}, false
}

// update replaces part of the snapshot and bumps the version.
func (s *State) update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.snap.Version++
	s.mu.Unlock()
}

// Initialize loads the primary currency and every list. A failure leaves
// the state uninitialized.
func (s *State) Initialize(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	primary, err := s.repos.Settings.PrimaryCurrency(ctx)
	if err != nil {
		return fmt.Errorf("load primary currency: %w", err)
	}
	s.update(func(snap *Snapshot) { snap.PrimaryCurrency = primary })

	if err := s.reloadCategories(ctx); err != nil {
		return err
	}
	if err := s.reloadPaymentMethods(ctx); err != nil {
		return err
	}
	if err := s.reloadTransactions(ctx, 0); err != nil {
		return err
	}
	if err := s.reloadRecurring(ctx); err != nil {
		return err
	}

	s.update(func(snap *Snapshot) { snap.Initialized = true })
	snap := s.Snapshot()
	s.logger.InfoContext(ctx, "State initialized",
		"primary_currency", string(snap.PrimaryCurrency),
		"categories", len(snap.Categories),
		"payment_methods", len(snap.PaymentMethods),
		"transactions", len(snap.Transactions),
		"recurring", len(snap.RecurringTransactions))
	return nil
}

func (s *State) LoadCategories(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.reloadCategories(ctx)
}

func (s *State) LoadPaymentMethods(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.reloadPaymentMethods(ctx)
}

// LoadTransactions reloads the newest transactions. A positive limit becomes
// the new cache size; otherwise the current limit is kept.
func (s *State) LoadTransactions(ctx context.Context, limit int) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.reloadTransactions(ctx, limit)
}

func (s *State) LoadRecurringTransactions(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.reloadRecurring(ctx)
}

func (s *State) reloadCategories(ctx context.Context) error {
	cats, err := s.repos.Categories.List(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	s.update(func(snap *Snapshot) { snap.Categories = cats })
	return nil
}

func (s *State) reloadPaymentMethods(ctx context.Context) error {
	pms, err := s.repos.PaymentMethods.List(ctx)
	if err != nil {
		return fmt.Errorf("load payment methods: %w", err)
	}
	s.update(func(snap *Snapshot) { snap.PaymentMethods = pms })
	return nil
}

func (s *State) reloadTransactions(ctx context.Context, limit int) error {
	if limit <= 0 {
		s.mu.RLock()
		limit = s.snap.TransactionLimit
		s.mu.RUnlock()
	}
	txns, err := s.repos.Transactions.ListWithDetails(ctx, limit)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	s.update(func(snap *Snapshot) {
		snap.Transactions = txns
		snap.TransactionLimit = limit
	})
	return nil
}

func (s *State) reloadRecurring(ctx context.Context) error {
	recs, err := s.repos.Recurring.List(ctx)
	if err != nil {
		return fmt.Errorf("load recurring transactions: %w", err)
	}
	s.update(func(snap *Snapshot) { snap.RecurringTransactions = recs })
	return nil
}

// SetPrimaryCurrency persists c. Existing converted amounts are left as they
// were written.
func (s *State) SetPrimaryCurrency(ctx context.Context, c currency.Code) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	if err := s.repos.Settings.SetPrimaryCurrency(ctx, c); err != nil {
		return fmt.Errorf("set primary currency: %w", err)
	}
	s.update(func(snap *Snapshot) { snap.PrimaryCurrency = c })
	s.logger.InfoContext(ctx, "Primary currency changed", log.FieldCurrency, string(c))
	return nil
}

// mutate runs write and, only if it succeeds, the reloads. A failed write
// leaves the cache untouched; a failed reload leaves it stale.
func (s *State) mutate(ctx context.Context, op string, write func() error, reloads ...func(context.Context) error) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	if err := write(); err != nil {
		return err
	}
	for _, reload := range reloads {
		if err := reload(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Reload after write failed", log.FieldOperation, op, log.FieldError, err)
			return err
		}
	}
	s.logger.DebugContext(ctx, "State reloaded",
		log.FieldOperation, log.OpReload,
		"after", op,
		log.FieldVersion, s.Version())
	return nil
}

func (s *State) reloadTxns(ctx context.Context) error { return s.reloadTransactions(ctx, 0) }

func (s *State) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	var created core.Category
	err := s.mutate(ctx, log.OpCreate, func() error {
		var err error
		created, err = s.repos.Categories.Create(ctx, c)
		return err
	}, s.reloadCategories)
	return created, err
}

// UpdateCategory also reloads transactions, whose joined details carry the
// category name and color.
func (s *State) UpdateCategory(ctx context.Context, id string, p core.CategoryPatch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsEmpty() {
		return nil
	}
	return s.mutate(ctx, log.OpUpdate, func() error {
		return s.repos.Categories.Update(ctx, id, p)
	}, s.reloadCategories, s.reloadTxns)
}

func (s *State) DeleteCategory(ctx context.Context, id string) error {
	return s.mutate(ctx, log.OpDelete, func() error {
		return s.repos.Categories.Delete(ctx, id)
	}, s.reloadCategories)
}

func (s *State) AddPaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	var created core.PaymentMethod
	err := s.mutate(ctx, log.OpCreate, func() error {
		var err error
		created, err = s.repos.PaymentMethods.Create(ctx, p)
		return err
	}, s.reloadPaymentMethods)
	return created, err
}

func (s *State) UpdatePaymentMethod(ctx context.Context, id string, p core.PaymentMethodPatch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsEmpty() {
		return nil
	}
	return s.mutate(ctx, log.OpUpdate, func() error {
		return s.repos.PaymentMethods.Update(ctx, id, p)
	}, s.reloadPaymentMethods, s.reloadTxns)
}

func (s *State) DeletePaymentMethod(ctx context.Context, id string) error {
	return s.mutate(ctx, log.OpDelete, func() error {
		return s.repos.PaymentMethods.Delete(ctx, id)
	}, s.reloadPaymentMethods)
}

// AddTransaction stores t as given; conversion happens in the caller.
func (s *State) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var created core.Transaction
	err := s.mutate(ctx, log.OpCreate, func() error {
		var err error
		created, err = s.repos.Transactions.Create(ctx, t)
		return err
	}, s.reloadTxns)
	return created, err
}

func (s *State) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) error {
	if p.IsEmpty() {
		return nil
	}
	return s.mutate(ctx, log.OpUpdate, func() error {
		return s.repos.Transactions.Update(ctx, id, p)
	}, s.reloadTxns)
}

func (s *State) DeleteTransaction(ctx context.Context, id string) error {
	return s.mutate(ctx, log.OpDelete, func() error {
		return s.repos.Transactions.Delete(ctx, id)
	}, s.reloadTxns)
}

func (s *State) AddRecurringTransaction(ctx context.Context, r core.RecurringTransaction) (core.RecurringTransaction, error) {
	var created core.RecurringTransaction
	err := s.mutate(ctx, log.OpCreate, func() error {
		var err error
		created, err = s.repos.Recurring.Create(ctx, r)
		return err
	}, s.reloadRecurring)
	return created, err
}

func (s *State) UpdateRecurringTransaction(ctx context.Context, id string, p core.RecurringPatch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsEmpty() {
		return nil
	}
	return s.mutate(ctx, log.OpUpdate, func() error {
		return s.repos.Recurring.Update(ctx, id, p)
	}, s.reloadRecurring)
}

func (s *State) DeleteRecurringTransaction(ctx context.Context, id string) error {
	return s.mutate(ctx, log.OpDelete, func() error {
		return s.repos.Recurring.Delete(ctx, id)
	}, s.reloadRecurring)
}
