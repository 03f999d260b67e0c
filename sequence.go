package sheetstore

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IncrementGenerator hands out increasing int64 values. Values are reserved
// in blocks from a sequence sheet with the key in column A and the last
// reserved value in column B.
type IncrementGenerator struct {
	store *Store
	key   string
	block int

	mu   sync.Mutex
	next int64
	end  int64 // exclusive
}

// NewIncrementGenerator creates a generator for the key. Block sizes below
// one are treated as one.
func NewIncrementGenerator(store *Store, key string, block int) *IncrementGenerator {
	if block < 1 {
		block = 1
	}
	return &IncrementGenerator{store: store, key: key, block: block}
}

// Next returns the next value of the sequence
func (g *IncrementGenerator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next >= g.end {
		if err := g.reserve(); err != nil {
			return 0, err
		}
	}
	v := g.next
	g.next++
	return v, nil
}

// reset drops the cached block so the next value is reserved again
func (g *IncrementGenerator) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next, g.end = 0, 0
}

func (g *IncrementGenerator) reserve() error {
	sheetName := g.store.config.SequenceSheet
	return g.store.write(func(wb *Workbook) error {
		sheet := wb.CreateSheet(sheetName)
		var row *Row
		for _, r := range sheet.Rows() {
			if c := r.Cell(0); c != nil {
				if s, ok := c.Text(); ok && s == g.key {
					row = r
					break
				}
			}
		}
		if row == nil {
			row = sheet.CreateRow(sheet.LastRowNum() + 1)
			row.CreateCell(0).SetString(g.key)
			row.CreateCell(1).SetNumber(0)
		}
		current := int64(0)
		if c := row.Cell(1); c != nil {
			f, ok := c.Number()
			if !ok {
				return fmt.Errorf("sequence %s holds a non-numeric value", g.key)
			}
			current = int64(f)
		}
		end := current + int64(g.block)
		row.CreateCell(1).SetNumber(float64(end))
		g.next = current + 1
		g.end = end + 1
		g.store.config.Logger.Debug("sequence block reserved", "key", g.key, "from", g.next, "to", end)
		return nil
	})
}

// newDatastoreID generates an identity for a datastore-identity class
func newDatastoreID(store *Store, cmd *ClassMeta) (any, error) {
	if cmd.DatastoreID == DatastoreIDString {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate identity for %s: %w", cmd.Name, err)
		}
		return id.String(), nil
	}
	return store.Sequence(cmd.Name).Next()
}
