package sheetstore

// activityColumns returns the columns whose presence marks a row as holding
// an object: the first column of every primary key field, the surrogate
// identity column, or column 0 for nondurable classes
func activityColumns(cmd *ClassMeta, table *Table) []int {
	switch cmd.Identity {
	case IdentityApplication:
		pks := cmd.PKFieldNumbers()
		cols := make([]int, 0, len(pks))
		for _, n := range pks {
			cols = append(cols, table.Mapping(n).Column(0))
		}
		return cols
	case IdentityDatastore:
		return []int{table.DatastoreIDColumn()}
	}
	return []int{0}
}

// rowIsActive reports whether every activity cell of the row is present
func rowIsActive(row *Row, cols []int) bool {
	if row == nil {
		return false
	}
	for _, c := range cols {
		if row.Cell(c) == nil {
			return false
		}
	}
	return true
}

// activeRowCount counts the rows of the sheet that hold an object. The count
// is the index the next inserted object is written to, since deletes shift
// later rows up and tombstone the last row.
func activeRowCount(sheet *Sheet, cmd *ClassMeta, table *Table) int {
	if sheet == nil {
		return 0
	}
	cols := activityColumns(cmd, table)
	count := 0
	for _, row := range sheet.Rows() {
		if rowIsActive(row, cols) {
			count++
		}
	}
	return count
}
