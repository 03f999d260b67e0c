package sheetstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// persistenceHandler runs insert, update, delete, fetch and locate against
// an open workbook. The caller owns the workbook for the duration of a call.
type persistenceHandler struct {
	cfg    Config
	logger *slog.Logger
	stats  *Stats

	mu     sync.Mutex
	tables map[*ClassMeta]*Table
}

func newPersistenceHandler(cfg Config, stats *Stats) *persistenceHandler {
	return &persistenceHandler{
		cfg:    cfg,
		logger: cfg.Logger,
		stats:  stats,
		tables: make(map[*ClassMeta]*Table),
	}
}

// tableFor returns the resolved column layout of the class
func (h *persistenceHandler) tableFor(cmd *ClassMeta) (*Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.tables[cmd]; ok {
		return t, nil
	}
	t, err := NewTable(cmd, h.cfg.Converters)
	if err != nil {
		return nil, err
	}
	h.tables[cmd] = t
	return t, nil
}

func (h *persistenceHandler) sheetFor(wb *Workbook, cmd *ClassMeta, table *Table) (*Sheet, error) {
	sheet := wb.Sheet(table.Name())
	if sheet == nil {
		return nil, fmt.Errorf("%w: %q for class %s", ErrSheetNotFound, table.Name(), cmd.Name)
	}
	return sheet, nil
}

// identityOf renders the identity of sm for logs and errors
func (h *persistenceHandler) identityOf(sm StateManager) string {
	cmd := sm.ClassMeta()
	switch cmd.Identity {
	case IdentityApplication:
		var keys []any
		for _, n := range cmd.PKFieldNumbers() {
			keys = append(keys, sm.ProvideField(n))
		}
		return h.cfg.IdentityCodec.Encode(cmd.Name, keys)
	case IdentityDatastore:
		if id := sm.InternalID(); id != nil {
			return h.cfg.IdentityCodec.Encode(cmd.Name, []any{id})
		}
	}
	return ""
}

func (h *persistenceHandler) objectError(op string, sm StateManager, err error) error {
	return &ObjectError{Class: sm.ClassMeta().Name, Identity: h.identityOf(sm), Op: op, Err: err}
}

// unsupported applies the unsupported-mapping policy: a warning and a
// skipped field, or an error under StrictMapping
func (h *persistenceHandler) unsupported(cmd *ClassMeta, f *FieldMeta, op string, cause error) error {
	if h.cfg.StrictMapping {
		return newMappingError(cmd, f, fmt.Errorf("%w: %v", ErrUnsupportedMapping, cause))
	}
	h.logger.Warn("field mapping not supported, field skipped",
		"class", cmd.Name, "field", f.Name, "type", f.Type.String(), "op", op, "reason", cause)
	return nil
}

// dangling applies the dangling-reference policy: a warning and a dropped
// reference, or an error under StrictReferences
func (h *persistenceHandler) dangling(cmd *ClassMeta, f *FieldMeta, token string) error {
	if h.cfg.StrictReferences {
		return newMappingError(cmd, f, fmt.Errorf("%w: %s", ErrDanglingReference, token))
	}
	h.logger.Warn("referenced object not found, reference dropped",
		"class", cmd.Name, "field", f.Name, "reference", token)
	return nil
}

func (h *persistenceHandler) checkWritable(op string, sm StateManager) error {
	if sm.ClassMeta().ReadOnly {
		return h.objectError(op, sm, ErrReadOnly)
	}
	return nil
}

func (h *persistenceHandler) warnVersionCheck(op string, cmd *ClassMeta) {
	if cmd.IsVersioned() {
		h.logger.Warn("optimistic version checks are not supported, version is only advanced",
			"class", cmd.Name, "op", op)
	}
}

// insert writes sm into the first free row of its class sheet
func (h *persistenceHandler) insert(wb *Workbook, sm StateManager) error {
	if err := h.checkWritable("insert", sm); err != nil {
		return err
	}
	cmd := sm.ClassMeta()
	start := time.Now()
	h.logger.Debug("inserting object", "class", cmd.Name, "id", h.identityOf(sm))

	table, err := h.tableFor(cmd)
	if err != nil {
		return err
	}
	if cmd.Identity == IdentityDatastore && sm.InternalID() == nil {
		return h.objectError("insert", sm, fmt.Errorf("no datastore identity assigned"))
	}

	sheet := wb.Sheet(table.Name())
	if cmd.Identity != IdentityNondurable {
		idx, err := locateRow(sheet, sm, table, false)
		if err != nil {
			return h.objectError("insert", sm, err)
		}
		if idx >= 0 {
			return h.objectError("insert", sm, ErrDuplicateIdentity)
		}
	}

	rowNum := 0
	if sheet == nil {
		sheet = wb.CreateSheet(table.Name())
	} else {
		rowNum = activeRowCount(sheet, cmd, table)
	}
	row := sheet.CreateRow(rowNum)

	fm := newStoreFieldManager(h, sm, row, table, true)
	if err := sm.ProvideFields(cmd.AllFieldNumbers(), fm); err != nil {
		removeRow(sheet, row.Index())
		return err
	}

	if cmd.Identity == IdentityDatastore {
		cell := row.CreateCell(table.DatastoreIDColumn())
		switch id := sm.InternalID().(type) {
		case string:
			cell.SetString(id)
		default:
			n, ok := toInt64(id)
			if !ok {
				removeRow(sheet, row.Index())
				return h.objectError("insert", sm, fmt.Errorf("datastore identity %T is neither string nor integer", id))
			}
			cell.SetNumber(float64(n))
		}
	}

	if cmd.IsVersioned() {
		next, err := nextVersion(cmd.Version, nil, h.cfg.Clock)
		if err != nil {
			removeRow(sheet, row.Index())
			return h.objectError("insert", sm, err)
		}
		h.writeVersion(sm, row, table, next)
	}

	h.stats.Inserts.Add(1)
	h.logger.Debug("inserted object", "class", cmd.Name, "sheet", table.Name(), "row", rowNum,
		"elapsed", time.Since(start))
	return nil
}

// update rewrites the given fields of sm in its existing row
func (h *persistenceHandler) update(wb *Workbook, sm StateManager, fields []int) error {
	if err := h.checkWritable("update", sm); err != nil {
		return err
	}
	cmd := sm.ClassMeta()
	start := time.Now()
	h.logger.Debug("updating object", "class", cmd.Name, "id", h.identityOf(sm), "fields", fields)

	table, err := h.tableFor(cmd)
	if err != nil {
		return err
	}
	sheet, err := h.sheetFor(wb, cmd, table)
	if err != nil {
		return h.objectError("update", sm, err)
	}

	var next any
	if cmd.IsVersioned() {
		h.warnVersionCheck("update", cmd)
		next, err = nextVersion(cmd.Version, sm.Version(), h.cfg.Clock)
		if err != nil {
			return h.objectError("update", sm, err)
		}
		if n := cmd.VersionFieldNumber(); n >= 0 {
			sm.ReplaceField(n, versionFieldValue(cmd.Field(n), next))
			if !slices.Contains(fields, n) {
				fields = append(slices.Clone(fields), n)
			}
		}
	}

	idx, err := locateRow(sheet, sm, table, true)
	if err != nil {
		return h.objectError("update", sm, err)
	}
	if idx < 0 {
		return h.objectError("update", sm, ErrNotFound)
	}
	row := sheet.Row(idx)

	fm := newStoreFieldManager(h, sm, row, table, false)
	if err := sm.ProvideFields(fields, fm); err != nil {
		return err
	}
	if next != nil {
		h.writeVersion(sm, row, table, next)
	}

	h.stats.Updates.Add(1)
	h.logger.Debug("updated object", "class", cmd.Name, "row", idx, "elapsed", time.Since(start))
	return nil
}

// delete removes the row of sm. Rows below move up one slot; the last row
// is cleared in place instead of removed.
func (h *persistenceHandler) delete(wb *Workbook, sm StateManager) error {
	if err := h.checkWritable("delete", sm); err != nil {
		return err
	}
	cmd := sm.ClassMeta()
	start := time.Now()
	h.logger.Debug("deleting object", "class", cmd.Name, "id", h.identityOf(sm))

	table, err := h.tableFor(cmd)
	if err != nil {
		return err
	}
	sheet, err := h.sheetFor(wb, cmd, table)
	if err != nil {
		return h.objectError("delete", sm, err)
	}
	h.warnVersionCheck("delete", cmd)

	if err := sm.LoadUnloadedFields(); err != nil {
		return h.objectError("delete", sm, err)
	}
	if err := h.deleteDependents(sm); err != nil {
		return err
	}

	// dependents may live in the same sheet, so look the row up afterwards
	idx, err := locateRow(sheet, sm, table, false)
	if err != nil {
		return h.objectError("delete", sm, err)
	}
	if idx < 0 {
		return h.objectError("delete", sm, ErrNotFound)
	}

	removeRow(sheet, idx)

	h.stats.Deletes.Add(1)
	h.logger.Debug("deleted object", "class", cmd.Name, "row", idx, "elapsed", time.Since(start))
	return nil
}

// removeRow drops the row at idx and moves later rows up one slot. The last
// row is cleared in place instead.
func removeRow(sheet *Sheet, idx int) {
	last := sheet.LastRowNum()
	if idx == last {
		sheet.Row(idx).Clear()
		return
	}
	sheet.RemoveRow(idx)
	sheet.ShiftRows(idx+1, last, -1)
}

// deleteDependents cascades the delete to objects held by cascade-delete
// relation fields
func (h *persistenceHandler) deleteDependents(sm StateManager) error {
	cmd := sm.ClassMeta()
	for n, f := range cmd.AllFields() {
		if f.Relation == RelationNone || f.Embedded != nil || !f.CascadeDelete {
			continue
		}
		value := sm.ProvideField(n)
		if value == nil {
			continue
		}
		ctx := sm.Context()
		if ctx == nil {
			return newMappingError(cmd, f, ErrNoContext)
		}
		var targets []any
		switch v := value.(type) {
		case []any:
			targets = v
		case []MapEntry:
			for _, e := range v {
				if f.KeyTarget != "" {
					targets = append(targets, e.Key)
				}
				if f.ValueTarget != "" {
					targets = append(targets, e.Value)
				}
			}
		default:
			targets = []any{v}
		}
		for _, t := range targets {
			if t == nil {
				continue
			}
			if err := ctx.DeleteReachable(t); err != nil {
				return fmt.Errorf("failed to delete dependent of %s.%s: %w", cmd.Name, f.Name, err)
			}
		}
	}
	return nil
}

// fetch reads the given fields of sm from its row
func (h *persistenceHandler) fetch(wb *Workbook, sm StateManager, fields []int) error {
	cmd := sm.ClassMeta()
	start := time.Now()
	if h.logger.Enabled(context.Background(), slog.LevelDebug) {
		names := make([]string, 0, len(fields))
		for _, n := range fields {
			if f := cmd.Field(n); f != nil {
				names = append(names, f.Name)
			}
		}
		h.logger.Debug("fetching object", "class", cmd.Name, "id", h.identityOf(sm), "fields", names)
	}

	table, err := h.tableFor(cmd)
	if err != nil {
		return err
	}
	sheet, err := h.sheetFor(wb, cmd, table)
	if err != nil {
		return h.objectError("fetch", sm, err)
	}
	idx, err := locateRow(sheet, sm, table, false)
	if err != nil {
		return h.objectError("fetch", sm, err)
	}
	if idx < 0 {
		return h.objectError("fetch", sm, ErrNotFound)
	}
	row := sheet.Row(idx)

	if err := h.fetchRow(sm, row, table, fields); err != nil {
		return err
	}

	h.stats.Fetches.Add(1)
	h.logger.Debug("fetched object", "class", cmd.Name, "row", idx, "elapsed", time.Since(start))
	return nil
}

// fetchRow populates sm from a known row and restores the version when the
// object does not carry one yet
func (h *persistenceHandler) fetchRow(sm StateManager, row *Row, table *Table, fields []int) error {
	cmd := sm.ClassMeta()
	fm := newFetchFieldManager(h, sm, row, table)
	if err := sm.ReplaceFields(fields, fm); err != nil {
		return err
	}
	if cmd.IsVersioned() && sm.Version() == nil {
		if v := readVersion(cmd.Version, row.Cell(table.VersionColumn())); v != nil {
			sm.SetVersion(v)
		}
	}
	return nil
}

// locate checks that a row holds the identity of sm
func (h *persistenceHandler) locate(wb *Workbook, sm StateManager) (int, error) {
	cmd := sm.ClassMeta()
	table, err := h.tableFor(cmd)
	if err != nil {
		return -1, err
	}
	idx, err := locateRow(wb.Sheet(table.Name()), sm, table, false)
	if err != nil {
		return -1, h.objectError("locate", sm, err)
	}
	h.stats.Locates.Add(1)
	if idx < 0 {
		return -1, h.objectError("locate", sm, ErrNotFound)
	}
	return idx, nil
}

// writeVersion stores the version in its cell, on the object, and in the
// version field when the version is field-based
func (h *persistenceHandler) writeVersion(sm StateManager, row *Row, table *Table, v any) {
	cell := row.CreateCell(table.VersionColumn())
	switch val := v.(type) {
	case time.Time:
		cell.SetDate(val)
	default:
		n, _ := toInt64(val)
		cell.SetNumber(float64(n))
	}
	sm.SetVersion(v)
	cmd := sm.ClassMeta()
	if n := cmd.VersionFieldNumber(); n >= 0 {
		sm.ReplaceField(n, versionFieldValue(cmd.Field(n), v))
	}
}
