package solar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

const (
	attendanceTimeLayout = "15:04:05"
	attendanceDateLayout = "1/2/2006"
)

// Entry describes a write made to the attendance log
type Entry struct {
	// Row is the 1-based row number that was written, or 0 if the
	// entry was appended
	Row      int
	Appended bool
	Time     string
	Date     string
}

func (e Entry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("row", e.Row),
		slog.Bool("appended", e.Appended),
		slog.String("time", e.Time),
		slog.String("date", e.Date),
	)
}

// AttendanceLog records departures and returns in a [TableStore].
//
// Each operation reads the whole table, resolves the target row and writes
// it back while holding a lock, so concurrent commands can't claim the
// same row.
type AttendanceLog struct {
	store    TableStore
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewAttendanceLog(
	store TableStore,
	location *time.Location,
	logger *slog.Logger,
) *AttendanceLog {
	if logger == nil {
		logger = slog.Default()
	}
	if location == nil {
		location = time.UTC
	}
	return &AttendanceLog{
		store:    store,
		location: location,
		now:      time.Now,
		logger:   logger,
	}
}

// clock returns the current time and date strings in the log's time zone
func (a *AttendanceLog) clock() (timeStr string, dateStr string) {
	now := a.now().In(a.location)
	return now.Format(attendanceTimeLayout), now.Format(attendanceDateLayout)
}

// LogDeparture records the current time as "time left". It returns
// ErrDuplicateDeparture if a departure was already logged today.
func (a *AttendanceLog) LogDeparture(ctx context.Context) (Entry, error) {
	return a.record(ctx, "departure", ResolveDeparture)
}

// LogReturn records the current time as "time returned" on the most
// recent open departure. It returns ErrNoOpenDeparture if there isn't one.
func (a *AttendanceLog) LogReturn(ctx context.Context) (Entry, error) {
	return a.record(ctx, "return", ResolveReturn)
}

func (a *AttendanceLog) record(
	ctx context.Context,
	kind string,
	resolve func(t Table, timeStr, dateStr string) (WritePlan, error),
) (Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	logger, ok := ContextLogger(ctx)
	if !ok || logger == nil {
		logger = a.logger
	}
	logger = logger.With("attendance", kind)

	timeStr, dateStr := a.clock()
	entry := Entry{Time: timeStr, Date: dateStr}

	values, err := a.store.ReadAllRows(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "error reading attendance table", tint.Err(err))
		return entry, &StoreError{Op: "read", Err: err}
	}

	plan, err := resolve(NewTable(values), timeStr, dateStr)
	if err != nil {
		logger.InfoContext(ctx, "declined", tint.Err(err), "rows", len(values))
		return entry, err
	}
	logger.DebugContext(ctx, "resolved write plan", "plan", plan)

	if err = a.apply(ctx, plan); err != nil {
		logger.ErrorContext(ctx, "error writing attendance table", tint.Err(err))
		return entry, err
	}

	if plan.Append {
		entry.Appended = true
	} else {
		entry.Row = plan.RowIndex + 1
	}
	logger.InfoContext(ctx, "logged", "entry", entry)
	return entry, nil
}

// apply executes the plan against the store, translating the plan's
// 0-based indexes to the store's 1-based addressing
func (a *AttendanceLog) apply(ctx context.Context, plan WritePlan) error {
	if plan.Append {
		if err := a.store.AppendRow(ctx, plan.AppendValues); err != nil {
			return &StoreError{Op: "append", Err: err}
		}
		return nil
	}
	if plan.RowIndex < 0 {
		return &StoreError{Op: "write", Err: ErrUnsupportedPlanWrite}
	}
	for _, w := range plan.Writes {
		if err := a.store.WriteCell(ctx, plan.RowIndex+1, w.Column+1, w.Value); err != nil {
			return &StoreError{
				Op:  fmt.Sprintf("write %s%d", columnLetter(w.Column+1), plan.RowIndex+1),
				Err: err,
			}
		}
	}
	return nil
}
