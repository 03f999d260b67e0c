package sheetstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store owns the workbook connection and runs persistence operations
// against it. The workbook is loaded on first use and written back on
// Commit, Sync, Close, by the periodic sync, or after every operation when
// CommitOnRelease is set.
type Store struct {
	config      Config
	schema      *Schema
	adaptor     Adapter
	handler     *persistenceHandler
	stats       Stats
	syncManager *SyncManager

	mu       sync.Mutex
	wb       *Workbook
	borrowed int
	inTx     bool
	dirty    bool
	closed   bool

	seqMu     sync.Mutex
	sequences map[string]*IncrementGenerator
}

// New creates a store over the adapter. A nil config uses defaults.
func New(adapter Adapter, schema *Schema, config *Config) *Store {
	cfg := config.withDefaults()
	if schema == nil {
		schema, _ = NewSchema()
	}

	s := &Store{
		config:    cfg,
		schema:    schema,
		adaptor:   adapter,
		sequences: make(map[string]*IncrementGenerator),
	}
	s.handler = newPersistenceHandler(cfg, &s.stats)

	if cfg.SyncInterval > 0 {
		s.syncManager = NewSyncManager(s, cfg.SyncInterval)
		s.syncManager.Start()
	}
	return s
}

// Initialize loads the workbook eagerly
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.loadLocked(ctx)
}

// Schema returns the class registry
func (s *Store) Schema() *Schema { return s.schema }

// Config returns the effective configuration
func (s *Store) Config() Config { return s.config }

// Stats returns a snapshot of the activity counters
func (s *Store) Stats() StatsSnapshot { return s.stats.Snapshot() }

// withRetry runs fn, retrying with capped exponential backoff
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i <= s.config.MaxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < s.config.MaxRetries {
			backoff := s.config.RetryInterval << uint(i)
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
			s.config.Logger.Warn("adapter call failed, retrying", "op", op, "attempt", i+1, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("failed to %s after %d retries: %w", op, s.config.MaxRetries, err)
}

func (s *Store) loadLocked(ctx context.Context) error {
	var wb *Workbook
	err := s.withRetry(ctx, "load workbook", func() error {
		var err error
		wb, err = s.adaptor.Load(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if wb == nil {
		wb = NewWorkbook()
	}
	s.wb = wb
	s.dirty = false
	s.stats.Loads.Add(1)
	s.config.Logger.Debug("workbook loaded", "sheets", wb.SheetNames())
	return nil
}

func (s *Store) saveLocked(ctx context.Context) error {
	if !s.dirty || s.wb == nil {
		return nil
	}
	err := s.withRetry(ctx, "save workbook", func() error {
		return s.adaptor.Save(ctx, s.wb)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	s.dirty = false
	s.stats.Saves.Add(1)
	s.config.Logger.Debug("workbook saved", "sheets", len(s.wb.sheets))
	return nil
}

// borrow hands out the workbook. Nested borrows from operations that
// cascade into other objects share the same workbook.
func (s *Store) borrow() (*Workbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.wb == nil {
		if err := s.loadLocked(context.Background()); err != nil {
			return nil, err
		}
	}
	s.borrowed++
	return s.wb, nil
}

// release returns the workbook and commits when the last borrower of a
// non-transactional write lets go
func (s *Store) release(wrote bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.borrowed--
	if wrote {
		s.dirty = true
	}
	if s.borrowed == 0 && !s.inTx && s.config.CommitOnRelease {
		return s.saveLocked(context.Background())
	}
	return nil
}

func (s *Store) read(fn func(wb *Workbook) error) error {
	wb, err := s.borrow()
	if err != nil {
		return err
	}
	opErr := fn(wb)
	if err := s.release(false); err != nil && opErr == nil {
		opErr = err
	}
	return opErr
}

func (s *Store) write(fn func(wb *Workbook) error) error {
	wb, err := s.borrow()
	if err != nil {
		return err
	}
	opErr := fn(wb)
	// a failed write may have touched cells, so the workbook is dirty either way
	if err := s.release(true); err != nil && opErr == nil {
		opErr = err
	}
	return opErr
}

// Insert writes a new object
func (s *Store) Insert(sm StateManager) error {
	return s.write(func(wb *Workbook) error {
		return s.handler.insert(wb, sm)
	})
}

// Update rewrites the listed fields of an existing object
func (s *Store) Update(sm StateManager, fields []int) error {
	return s.write(func(wb *Workbook) error {
		return s.handler.update(wb, sm, fields)
	})
}

// Delete removes an object and its cascade-delete dependents
func (s *Store) Delete(sm StateManager) error {
	return s.write(func(wb *Workbook) error {
		return s.handler.delete(wb, sm)
	})
}

// Fetch reads the listed fields of an object
func (s *Store) Fetch(sm StateManager, fields []int) error {
	return s.read(func(wb *Workbook) error {
		return s.handler.fetch(wb, sm, fields)
	})
}

// Locate verifies that the object exists, returning ErrNotFound otherwise
func (s *Store) Locate(sm StateManager) error {
	_, err := s.RowOf(sm)
	return err
}

// RowOf returns the zero-based row index holding the object
func (s *Store) RowOf(sm StateManager) (int, error) {
	idx := -1
	err := s.read(func(wb *Workbook) error {
		var err error
		idx, err = s.handler.locate(wb, sm)
		return err
	})
	return idx, err
}

// ActiveRowCount returns the number of rows holding objects of the class
func (s *Store) ActiveRowCount(cmd *ClassMeta) (int, error) {
	count := 0
	err := s.read(func(wb *Workbook) error {
		table, err := s.handler.tableFor(cmd)
		if err != nil {
			return err
		}
		count = activeRowCount(wb.Sheet(table.Name()), cmd, table)
		return nil
	})
	return count, err
}

// Table returns the resolved column layout of the class
func (s *Store) Table(cmd *ClassMeta) (*Table, error) {
	return s.handler.tableFor(cmd)
}

// CandidateFunc receives an object carrying only the identity read from an
// active row. It returns the object to populate from that row, or nil to
// skip it, and whether the row still has to be read into it.
type CandidateFunc func(candidate StateManager) (target StateManager, load bool, err error)

// Candidates walks the active rows of the class sheet in row order
func (s *Store) Candidates(cmd *ClassMeta, newObject func() StateManager, visit CandidateFunc) error {
	return s.read(func(wb *Workbook) error {
		table, err := s.handler.tableFor(cmd)
		if err != nil {
			return err
		}
		sheet := wb.Sheet(table.Name())
		if sheet == nil {
			return nil
		}
		cols := activityColumns(cmd, table)
		for _, row := range sheet.Rows() {
			if !rowIsActive(row, cols) {
				continue
			}
			candidate := newObject()
			switch cmd.Identity {
			case IdentityApplication:
				if err := s.handler.fetchRow(candidate, row, table, cmd.PKFieldNumbers()); err != nil {
					return err
				}
			case IdentityDatastore:
				id := readDatastoreID(cmd, row.Cell(table.DatastoreIDColumn()))
				if id == nil {
					continue
				}
				candidate.SetInternalID(id)
			default:
				if err := s.handler.fetchRow(candidate, row, table, cmd.AllFieldNumbers()); err != nil {
					return err
				}
			}
			target, load, err := visit(candidate)
			if err != nil {
				return err
			}
			if target != nil && load {
				if err := s.handler.fetchRow(target, row, table, cmd.AllFieldNumbers()); err != nil {
					return err
				}
				s.stats.Fetches.Add(1)
			}
		}
		return nil
	})
}

func readDatastoreID(cmd *ClassMeta, cell *Cell) any {
	if cell == nil {
		return nil
	}
	if cmd.DatastoreID == DatastoreIDString {
		if s, ok := cell.Text(); ok && s != "" {
			return s
		}
		return nil
	}
	if cell.Kind() != CellNumeric {
		return nil
	}
	f, _ := cell.Number()
	return int64(f)
}

// CreateSchema creates the sheets of the classes that do not have one yet
func (s *Store) CreateSchema(classes ...*ClassMeta) error {
	return s.write(func(wb *Workbook) error {
		for _, cmd := range classes {
			table, err := s.handler.tableFor(cmd)
			if err != nil {
				return err
			}
			if wb.Sheet(table.Name()) == nil {
				wb.CreateSheet(table.Name())
				s.config.Logger.Debug("sheet created", "class", cmd.Name, "sheet", table.Name())
			}
		}
		return nil
	})
}

// DeleteSchema removes the sheets of the classes
func (s *Store) DeleteSchema(classes ...*ClassMeta) error {
	return s.write(func(wb *Workbook) error {
		for _, cmd := range classes {
			table, err := s.handler.tableFor(cmd)
			if err != nil {
				return err
			}
			if wb.RemoveSheet(table.Name()) {
				s.config.Logger.Debug("sheet removed", "class", cmd.Name, "sheet", table.Name())
			}
		}
		return nil
	})
}

// View runs fn against the workbook without marking it dirty
func (s *Store) View(fn func(wb *Workbook) error) error {
	return s.read(fn)
}

// Modify runs fn against the workbook and marks it dirty
func (s *Store) Modify(fn func(wb *Workbook) error) error {
	return s.write(fn)
}

// Begin suspends commit-on-release until Commit or Rollback
func (s *Store) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.inTx {
		return fmt.Errorf("transaction already active")
	}
	s.inTx = true
	return nil
}

// Commit saves pending changes and ends the transaction
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.inTx = false
	return s.saveLocked(ctx)
}

// Rollback discards unsaved changes. The workbook is reloaded on next use
// and sequence blocks reserved since the last save are forgotten.
func (s *Store) Rollback() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.borrowed > 0 {
		s.mu.Unlock()
		return fmt.Errorf("cannot roll back while an operation is running")
	}
	s.inTx = false
	s.wb = nil
	s.dirty = false
	s.mu.Unlock()

	// lock order is generator, then store
	s.seqMu.Lock()
	gens := make([]*IncrementGenerator, 0, len(s.sequences))
	for _, g := range s.sequences {
		gens = append(gens, g)
	}
	s.seqMu.Unlock()
	for _, g := range gens {
		g.reset()
	}
	return nil
}

// Sync forces the workbook to be written to the backend
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.saveLocked(context.Background())
}

// syncIfIdle saves when no operation or transaction is in progress
func (s *Store) syncIfIdle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.borrowed > 0 || s.inTx || !s.dirty {
		return nil
	}
	return s.saveLocked(ctx)
}

// Close stops the periodic sync and commits pending changes
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	syncManager := s.syncManager
	s.syncManager = nil
	s.mu.Unlock()

	if syncManager != nil {
		syncManager.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(context.Background()); err != nil {
		return fmt.Errorf("failed to sync on close: %w", err)
	}
	return nil
}

// Sequence returns the increment generator for the key, creating it on
// first use
func (s *Store) Sequence(key string) *IncrementGenerator {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if g, ok := s.sequences[key]; ok {
		return g
	}
	g := NewIncrementGenerator(s, key, s.config.SequenceBlock)
	s.sequences[key] = g
	return g
}

// SyncManager manages periodic synchronization
type SyncManager struct {
	store     *Store
	interval  time.Duration
	ticker    *time.Ticker
	done      chan bool
	syncMutex sync.Mutex
	wg        sync.WaitGroup
}

// NewSyncManager creates a new sync manager
func NewSyncManager(store *Store, interval time.Duration) *SyncManager {
	return &SyncManager{
		store:    store,
		interval: interval,
		done:     make(chan bool),
	}
}

// Start begins the periodic sync process
func (sm *SyncManager) Start() {
	sm.ticker = time.NewTicker(sm.interval)
	sm.wg.Add(1)

	go func() {
		defer sm.wg.Done()

		for {
			select {
			case <-sm.ticker.C:
				sm.performSync()
			case <-sm.done:
				return
			}
		}
	}()
}

// performSync executes synchronization with exclusive control
func (sm *SyncManager) performSync() {
	// Skip this cycle if the previous sync is still running
	if !sm.syncMutex.TryLock() {
		return
	}
	defer sm.syncMutex.Unlock()

	if err := sm.store.syncIfIdle(context.Background()); err != nil {
		sm.store.config.Logger.Warn("periodic sync failed", "error", err)
	}
}

// Stop stops the sync manager and waits for ongoing sync
func (sm *SyncManager) Stop() {
	if sm.ticker != nil {
		sm.ticker.Stop()
	}

	close(sm.done)

	sm.wg.Wait()

	// Wait for any ongoing sync to complete
	sm.syncMutex.Lock()
	sm.syncMutex.Unlock()
}
