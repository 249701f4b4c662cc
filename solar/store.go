package solar

import (
	"context"
)

const (
	attendanceStoreSheets   = "sheets"
	attendanceStoreDatabase = "database"
)

// defaultHeader is written as the first row when initializing an empty table
var defaultHeader = []string{"Time Left", "Time Returned", "", "Date", ""}

// TableStore is the backing store for the attendance table. Row and
// column numbers are 1-based, matching spreadsheet addressing.
type TableStore interface {
	// ReadAllRows returns every row of the table, header included. Trailing
	// empty cells may be omitted, so rows can differ in length.
	ReadAllRows(ctx context.Context) ([][]string, error)

	// WriteCell sets a single cell
	WriteCell(ctx context.Context, row int, column int, value string) error

	// AppendRow adds a row after the last row of the table
	AppendRow(ctx context.Context, values []string) error
}

// TableInitializer is implemented by stores that can prepare an empty
// table (ex: creating it and writing the header row).
type TableInitializer interface {
	InitTable(ctx context.Context) error
}
