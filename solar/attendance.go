package solar

import (
	"errors"
	"log/slog"
)

// Attendance table columns, 0-based
const (
	ColumnTimeLeft     = 0
	ColumnTimeReturned = 1
	ColumnReserved     = 2
	ColumnDate         = 3

	// appendRowWidth is the number of values written when a departure
	// can't reuse an existing row
	appendRowWidth = 5

	// headerRows is the number of leading rows excluded from matching
	headerRows = 1
)

var (
	// ErrDuplicateDeparture is returned when a departure has already been
	// logged for the current date
	ErrDuplicateDeparture = errors.New("departure already logged today")

	// ErrNoOpenDeparture is returned when there's no row with a departure
	// that hasn't been closed by a return
	ErrNoOpenDeparture = errors.New("no open departure found")
)

// Row is a single attendance table row. Rows aren't fixed-width, so cells
// should be read with [Row.Cell].
type Row []string

// Cell returns the value at the given 0-based column, or an empty string
// if the row is too short to contain it.
func (r Row) Cell(column int) string {
	if column < 0 || column >= len(r) {
		return ""
	}
	return r[column]
}

// Table is a snapshot of the attendance log. Index 0 is the header.
type Table []Row

// NewTable converts raw cell values (as returned by a [TableStore]) to a Table.
func NewTable(values [][]string) Table {
	t := make(Table, len(values))
	for i, v := range values {
		t[i] = v
	}
	return t
}

// CellWrite is a single cell assignment at a 0-based column
type CellWrite struct {
	Column int
	Value  string
}

// WritePlan describes how a resolved operation mutates the table.
//
// When Append is false, Writes are applied in-place to the row at
// RowIndex (0-based, header included). When Append is true, RowIndex is -1
// and AppendValues is written as a new row at the end of the table.
type WritePlan struct {
	RowIndex     int
	Writes       []CellWrite
	Append       bool
	AppendValues []string
}

func (p WritePlan) LogValue() slog.Value {
	if p.Append {
		return slog.GroupValue(
			slog.Bool("append", true),
			slog.Any("values", p.AppendValues),
		)
	}
	attrs := []slog.Attr{slog.Int("row_index", p.RowIndex)}
	for _, w := range p.Writes {
		attrs = append(attrs, slog.String(columnName(w.Column), w.Value))
	}
	return slog.GroupValue(attrs...)
}

// ResolveDeparture decides where a departure at the given time and date
// is written.
//
// If any data row already has a departure on dateStr, ErrDuplicateDeparture
// is returned. Otherwise the first data row with an empty "time left" cell
// is targeted, and if there is none the plan appends a new row.
func ResolveDeparture(t Table, timeStr, dateStr string) (WritePlan, error) {
	// the whole table is checked before looking for a free row, since a
	// duplicate may sit below an empty row left by a manual edit
	for i := headerRows; i < len(t); i++ {
		row := t[i]
		if row.Cell(ColumnDate) == dateStr && row.Cell(ColumnTimeLeft) != "" {
			return WritePlan{}, ErrDuplicateDeparture
		}
	}

	for i := headerRows; i < len(t); i++ {
		if t[i].Cell(ColumnTimeLeft) == "" {
			return WritePlan{
				RowIndex: i,
				Writes: []CellWrite{
					{Column: ColumnTimeLeft, Value: timeStr},
					{Column: ColumnDate, Value: dateStr},
				},
			}, nil
		}
	}

	values := make([]string, appendRowWidth)
	values[ColumnTimeLeft] = timeStr
	values[ColumnDate] = dateStr
	return WritePlan{RowIndex: -1, Append: true, AppendValues: values}, nil
}

// ResolveReturn decides where a return at the given time and date is
// written: the last row with a departure and no return. If there's no such
// row, ErrNoOpenDeparture is returned.
func ResolveReturn(t Table, timeStr, dateStr string) (WritePlan, error) {
	for i := len(t) - 1; i >= headerRows; i-- {
		row := t[i]
		if row.Cell(ColumnTimeLeft) != "" && row.Cell(ColumnTimeReturned) == "" {
			return WritePlan{
				RowIndex: i,
				Writes: []CellWrite{
					{Column: ColumnTimeReturned, Value: timeStr},
					{Column: ColumnDate, Value: dateStr},
				},
			}, nil
		}
	}
	return WritePlan{}, ErrNoOpenDeparture
}

func columnName(column int) string {
	switch column {
	case ColumnTimeLeft:
		return "time_left"
	case ColumnTimeReturned:
		return "time_returned"
	case ColumnReserved:
		return "reserved"
	case ColumnDate:
		return "date"
	default:
		return columnLetter(column + 1)
	}
}

// columnLetter converts a 1-based column number to A1 notation letters
func columnLetter(column int) string {
	var letters []byte
	for column > 0 {
		column--
		letters = append([]byte{byte('A' + column%26)}, letters...)
		column /= 26
	}
	return string(letters)
}
