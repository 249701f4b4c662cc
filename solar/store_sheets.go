package solar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	sheetsValueInputUserEntered = "USER_ENTERED"
	sheetsValueInputRaw         = "RAW"
	sheetsInsertRows            = "INSERT_ROWS"
	spreadsheetMimeType         = "application/vnd.google-apps.spreadsheet"
)

// SheetsStore implements [TableStore] against a single worksheet of a
// Google Sheets spreadsheet
type SheetsStore struct {
	service       *sheets.Service
	spreadsheetID string
	worksheet     string
	logger        *slog.Logger
}

// NewSheetsStore authenticates with the configured service account,
// locates the spreadsheet and resolves the worksheet title.
func NewSheetsStore(
	ctx context.Context,
	cfg *SheetsConfig,
	logger *slog.Logger,
) (*SheetsStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := sheetsClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &StartupError{Component: "sheets", Err: err}
	}

	store := &SheetsStore{
		service:       svc,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
		logger:        logger,
	}

	if store.spreadsheetID == "" {
		driveOpts := opts
		if cfg.endpoint != "" {
			driveOpts = append(
				driveOpts[:len(driveOpts):len(driveOpts)],
				option.WithEndpoint(strings.TrimSuffix(cfg.endpoint, "/")+"/drive/v3/"),
			)
		}
		id, findErr := findSpreadsheet(ctx, cfg.SpreadsheetName, driveOpts)
		if findErr != nil {
			return nil, &StartupError{Component: "sheets", Err: findErr}
		}
		store.spreadsheetID = id
	}

	if store.worksheet == "" {
		title, titleErr := store.firstWorksheet(ctx)
		if titleErr != nil {
			return nil, &StartupError{Component: "sheets", Err: titleErr}
		}
		store.worksheet = title
	}

	logger.InfoContext(
		ctx,
		"opened spreadsheet",
		"spreadsheet_id", store.spreadsheetID,
		"worksheet", store.worksheet,
	)
	return store, nil
}

func sheetsClientOptions(cfg *SheetsConfig) ([]option.ClientOption, error) {
	if cfg.endpoint != "" {
		opts := []option.ClientOption{
			option.WithEndpoint(cfg.endpoint),
			option.WithoutAuthentication(),
		}
		if cfg.httpClient != nil {
			opts = append(opts, option.WithHTTPClient(cfg.httpClient))
		}
		return opts, nil
	}

	if cfg.CredentialsFile == "" {
		return nil, &StartupError{Component: "sheets", Err: ErrMissingCredentials}
	}
	if _, err := os.Stat(cfg.CredentialsFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &StartupError{
				Component: "sheets",
				Err:       fmt.Errorf("%w: %s", ErrMissingCredentials, cfg.CredentialsFile),
			}
		}
		return nil, &StartupError{Component: "sheets", Err: err}
	}
	return []option.ClientOption{
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope, drive.DriveReadonlyScope),
	}, nil
}

// findSpreadsheet returns the ID of the first spreadsheet visible to the
// service account with the given title
func findSpreadsheet(
	ctx context.Context,
	name string,
	opts []option.ClientOption,
) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no spreadsheet id or name set", ErrSpreadsheetNotFound)
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return "", err
	}

	q := fmt.Sprintf(
		"name = '%s' and mimeType = '%s' and trashed = false",
		escapeDriveQuery(name),
		spreadsheetMimeType,
	)
	files, err := svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("error searching for spreadsheet %q: %w", name, err)
	}
	if len(files.Files) == 0 {
		return "", fmt.Errorf("%w: %q", ErrSpreadsheetNotFound, name)
	}
	return files.Files[0].Id, nil
}

func escapeDriveQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (s *SheetsStore) firstWorksheet(ctx context.Context) (string, error) {
	ss, err := s.service.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("error getting spreadsheet %s: %w", s.spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no worksheets", s.spreadsheetID)
	}
	return ss.Sheets[0].Properties.Title, nil
}

// sheetRange returns an A1 range on the store's worksheet. An empty
// cells value refers to the whole sheet.
func (s *SheetsStore) sheetRange(cells string) string {
	title := "'" + strings.ReplaceAll(s.worksheet, "'", "''") + "'"
	if cells == "" {
		return title
	}
	return title + "!" + cells
}

func (s *SheetsStore) ReadAllRows(ctx context.Context) ([][]string, error) {
	vr, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetRange("")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				continue
			}
			cells[j] = fmt.Sprint(v)
		}
		rows[i] = cells
	}
	s.logger.DebugContext(ctx, "read rows", "rows", len(rows))
	return rows, nil
}

func (s *SheetsStore) WriteCell(
	ctx context.Context,
	row int,
	column int,
	value string,
) error {
	if row < 1 || column < 1 {
		return fmt.Errorf("cell out of range: row=%d column=%d", row, column)
	}
	a1 := fmt.Sprintf("%s%d", columnLetter(column), row)
	_, err := s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		s.sheetRange(a1),
		&sheets.ValueRange{Values: [][]any{{value}}},
	).
		ValueInputOption(sheetsValueInputUserEntered).
		Context(ctx).
		Do()
	if err != nil {
		s.logger.ErrorContext(ctx, "error updating cell", "cell", a1, tint.Err(err))
		return err
	}
	return nil
}

func (s *SheetsStore) AppendRow(ctx context.Context, values []string) error {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.sheetRange("A1"),
		&sheets.ValueRange{Values: [][]any{row}},
	).
		ValueInputOption(sheetsValueInputRaw).
		InsertDataOption(sheetsInsertRows).
		Context(ctx).
		Do()
	if err != nil {
		s.logger.ErrorContext(ctx, "error appending row", tint.Err(err))
		return err
	}
	return nil
}

// InitTable writes the header row to an empty worksheet
func (s *SheetsStore) InitTable(ctx context.Context) error {
	rows, err := s.ReadAllRows(ctx)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}
	return s.AppendRow(ctx, defaultHeader)
}
