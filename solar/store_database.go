package solar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"

	columnAttendanceRowNumber = "row_num"
)

// attendanceRecordColumns maps 1-based table columns to database columns
var attendanceRecordColumns = []string{
	"time_left",
	"time_returned",
	"reserved",
	"date",
	"extra",
}

// AttendanceRecord is one row of the attendance table, when the table is
// kept in a database rather than a spreadsheet. RowNumber 1 is the header.
type AttendanceRecord struct {
	RowNumber    int    `gorm:"column:row_num;primaryKey;autoIncrement:false" json:"row_num"`
	TimeLeft     string `gorm:"column:time_left" json:"time_left"`
	TimeReturned string `gorm:"column:time_returned" json:"time_returned"`
	Reserved     string `gorm:"column:reserved" json:"reserved"`
	Date         string `gorm:"column:date" json:"date"`
	Extra        string `gorm:"column:extra" json:"extra"`
	UpdatedAt    int64  `gorm:"autoUpdateTime:milli" json:"updated_at"`
}

func (AttendanceRecord) TableName() string {
	return "attendance"
}

// cells returns the record's values with trailing empty cells removed,
// the way the Sheets API returns rows
func (r AttendanceRecord) cells() []string {
	values := []string{r.TimeLeft, r.TimeReturned, r.Reserved, r.Date, r.Extra}
	n := len(values)
	for n > 0 && values[n-1] == "" {
		n--
	}
	return values[:n]
}

func (r *AttendanceRecord) set(column int, value string) {
	switch column {
	case 1:
		r.TimeLeft = value
	case 2:
		r.TimeReturned = value
	case 3:
		r.Reserved = value
	case 4:
		r.Date = value
	case 5:
		r.Extra = value
	}
}

// DatabaseStore implements [TableStore] on top of a GORM connection
type DatabaseStore struct {
	db *gorm.DB
}

func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) ReadAllRows(ctx context.Context) ([][]string, error) {
	var records []AttendanceRecord
	if err := s.db.WithContext(ctx).
		Order(columnAttendanceRowNumber + " asc").
		Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return [][]string{}, nil
	}

	rows := make([][]string, records[len(records)-1].RowNumber)
	for _, rec := range records {
		if rec.RowNumber < 1 {
			continue
		}
		rows[rec.RowNumber-1] = rec.cells()
	}
	for i := range rows {
		if rows[i] == nil {
			rows[i] = []string{}
		}
	}
	return rows, nil
}

func (s *DatabaseStore) WriteCell(
	ctx context.Context,
	row int,
	column int,
	value string,
) error {
	if row < 1 || column < 1 || column > len(attendanceRecordColumns) {
		return fmt.Errorf("cell out of range: row=%d column=%d", row, column)
	}

	return s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			rv := tx.Model(&AttendanceRecord{}).
				Where(columnAttendanceRowNumber+" = ?", row).
				Update(attendanceRecordColumns[column-1], value)
			if rv.Error != nil {
				return rv.Error
			}
			if rv.RowsAffected > 0 {
				return nil
			}
			rec := AttendanceRecord{RowNumber: row}
			rec.set(column, value)
			return tx.Create(&rec).Error
		},
	)
}

func (s *DatabaseStore) AppendRow(ctx context.Context, values []string) error {
	if len(values) > len(attendanceRecordColumns) {
		return fmt.Errorf(
			"too many values: %d (max %d)",
			len(values),
			len(attendanceRecordColumns),
		)
	}
	return s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			var lastRow int
			if err := tx.Model(&AttendanceRecord{}).
				Select("COALESCE(MAX(" + columnAttendanceRowNumber + "), 0)").
				Scan(&lastRow).Error; err != nil {
				return err
			}
			rec := AttendanceRecord{RowNumber: lastRow + 1}
			for i, v := range values {
				rec.set(i+1, v)
			}
			return tx.Create(&rec).Error
		},
	)
}

// Close closes the underlying database connection
func (s *DatabaseStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitTable writes the header row if the table is empty
func (s *DatabaseStore) InitTable(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&AttendanceRecord{}).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.AppendRow(ctx, defaultHeader)
}

// CreateDB opens the database and runs migrations
func CreateDB(
	ctx context.Context,
	databaseType string,
	database string,
	log *slog.Logger,
	slowThreshold time.Duration,
) (*gorm.DB, error) {
	if log == nil {
		log = newComponentLogger("database", slog.LevelWarn)
	}

	log.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, newGORMLogger(log, slowThreshold))
	if err != nil {
		return db, err
	}

	if err = db.WithContext(ctx).AutoMigrate(&AttendanceRecord{}); err != nil {
		return db, fmt.Errorf("error migrating database: %w", err)
	}
	return db, nil
}

// getDB initializes and returns a GORM database connection based on the
// specified database type.
//
// Parameters:
//   - databaseType: Must be 'sqlite' or 'postgres'
//   - database: Database connection string, or SQLite file path.
//   - gormLogger: A pointer to a gormStructuredLogger instance for
//     logging database operations.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(sqlite.Open(database), cfg)
	case dbTypePostgres:
		return gorm.Open(postgres.Open(database), cfg)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}
