package solar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStoreUnavailable = errors.New("store unavailable")

// testNow is 2024-06-01 09:15:00 in America/New_York
var testNow = time.Date(2024, 6, 1, 13, 15, 0, 0, time.UTC)

// memTableStore is an in-memory TableStore, with optional failures and a
// delay to widen race windows
type memTableStore struct {
	mu   sync.Mutex
	rows [][]string

	readErr   error
	writeErr  error
	appendErr error
	delay     time.Duration

	writes  []memCellWrite
	appends [][]string
}

type memCellWrite struct {
	Row    int
	Column int
	Value  string
}

func newMemTableStore(rows ...[]string) *memTableStore {
	s := &memTableStore{}
	for _, r := range rows {
		s.rows = append(s.rows, append([]string(nil), r...))
	}
	return s
}

func (s *memTableStore) ReadAllRows(_ context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (s *memTableStore) WriteCell(_ context.Context, row, column int, value string) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	for len(s.rows) < row {
		s.rows = append(s.rows, []string{})
	}
	r := s.rows[row-1]
	for len(r) < column {
		r = append(r, "")
	}
	r[column-1] = value
	s.rows[row-1] = r
	s.writes = append(s.writes, memCellWrite{Row: row, Column: column, Value: value})
	return nil
}

func (s *memTableStore) AppendRow(_ context.Context, values []string) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.rows = append(s.rows, append([]string(nil), values...))
	s.appends = append(s.appends, append([]string(nil), values...))
	return nil
}

func (s *memTableStore) snapshot() [][]string {
	rows, _ := s.ReadAllRows(context.Background())
	return rows
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(
	ctx context.Context,
	systemPrompt string,
	userPrompt string,
) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

type bulkOverwriteCall struct {
	AppID    string
	GuildID  string
	Commands []*discordgo.ApplicationCommand
}

// mockDiscordSession is a DiscordSessionHandler which records calls
// instead of talking to discord
type mockDiscordSession struct {
	mu sync.Mutex

	openErr      error
	overwriteErr error

	opened   int
	closed   int
	handlers int
	identify discordgo.Identify

	overwrites []bulkOverwriteCall
	responses  []*discordgo.InteractionResponse
	edits      []*discordgo.WebhookEdit
}

func (d *mockDiscordSession) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opened++
	return nil
}

func (d *mockDiscordSession) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *mockDiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.overwriteErr != nil {
		return nil, d.overwriteErr
	}
	d.overwrites = append(
		d.overwrites,
		bulkOverwriteCall{AppID: appID, GuildID: guildID, Commands: commands},
	)
	created := make([]*discordgo.ApplicationCommand, len(commands))
	for i, c := range commands {
		created[i] = &discordgo.ApplicationCommand{
			ID:            c.Name + "-id",
			ApplicationID: appID,
			GuildID:       guildID,
			Name:          c.Name,
			Description:   c.Description,
		}
	}
	return created, nil
}

func (d *mockDiscordSession) AddHandler(_ any) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers++
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.handlers--
	}
}

func (d *mockDiscordSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses = append(d.responses, resp)
	return nil
}

func (d *mockDiscordSession) InteractionResponseEdit(
	_ *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.edits = append(d.edits, newresp)
	msg := &discordgo.Message{}
	if newresp.Content != nil {
		msg.Content = *newresp.Content
	}
	return msg, nil
}

func (d *mockDiscordSession) SetHTTPClient(_ *http.Client) {}

func (d *mockDiscordSession) SetIdentify(i discordgo.Identify) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identify = i
}

func (d *mockDiscordSession) SetLogLevel(_ slog.Level) error {
	return nil
}

func (d *mockDiscordSession) overwriteCalls() []bulkOverwriteCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bulkOverwriteCall(nil), d.overwrites...)
}

// stubInteractionHandler sends calls to Respond and Edit on channels
type stubInteractionHandler struct {
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
	respondErr  error

	callRespond chan *discordgo.InteractionResponse
	callEdit    chan *discordgo.WebhookEdit
}

func newStubInteractionHandler(
	t testing.TB,
	i *discordgo.InteractionCreate,
) stubInteractionHandler {
	t.Helper()
	return stubInteractionHandler{
		interaction: i,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)).With("test_name", t.Name()),
		callRespond: make(chan *discordgo.InteractionResponse, 10),
		callEdit:    make(chan *discordgo.WebhookEdit, 10),
	}
}

func (s stubInteractionHandler) Respond(
	_ context.Context,
	i *discordgo.InteractionResponse,
) error {
	s.callRespond <- i
	return s.respondErr
}

func (s stubInteractionHandler) Edit(
	_ context.Context,
	e *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.callEdit <- e
	return &discordgo.Message{}, nil
}

func (s stubInteractionHandler) GetInteraction() *discordgo.InteractionCreate {
	return s.interaction
}

func (s stubInteractionHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return DiscordInteractionReceiveMethod("testcase")
}

func (s stubInteractionHandler) Logger() *slog.Logger {
	return s.logger
}

// waitForEdit returns the content of the next edit sent to the handler
func waitForEdit(t testing.TB, s stubInteractionHandler) string {
	t.Helper()
	select {
	case e := <-s.callEdit:
		require.NotNil(t, e.Content)
		return *e.Content
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for edit")
	}
	return ""
}

func newTestConfig(t testing.TB) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Discord.Token = "test-discord-token"
	cfg.Discord.ApplicationID = "test-app-id"
	cfg.Discord.GuildID = "test-guild-id"
	cfg.LLM.Token = "test-llm-token"
	cfg.Attendance.Store = attendanceStoreDatabase
	cfg.Database = filepath.Join(t.TempDir(), "solar.sqlite3")
	cfg.KeepAlive.Enabled = false
	cfg.KeepAlive.Listen = "127.0.0.1:0"
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 5 * time.Second

	logLevel := slog.LevelWarn
	cfg.LogLevel.Set(logLevel)
	cfg.Discord.LogLevel.Set(logLevel)
	cfg.Discord.DiscordGoLogLevel.Set(logLevel)
	cfg.DatabaseLogLevel.Set(logLevel)
	cfg.LLM.LogLevel.Set(logLevel)
	cfg.Sheets.LogLevel.Set(logLevel)
	cfg.KeepAlive.LogLevel.Set(logLevel)
	cfg.Discord.WebhookServer.LogLevel.Set(logLevel)
	return cfg
}

// newTestBot returns a Bot using an in-memory table, a mocked completer
// and a mocked discord session, with the clock fixed at testNow
func newTestBot(
	t testing.TB,
	cfg *Config,
	rows ...[]string,
) (*Bot, *memTableStore, *mockCompleter, *mockDiscordSession) {
	t.Helper()
	gin.DefaultWriter = io.Discard
	if cfg == nil {
		cfg = newTestConfig(t)
	}

	bot, err := New(cfg)
	require.NoError(t, err)

	store := newMemTableStore(rows...)
	bot.attendance = NewAttendanceLog(store, bot.location, nil)
	bot.attendance.now = func() time.Time { return testNow }

	completer := &mockCompleter{}
	bot.completer = completer

	session := &mockDiscordSession{}
	bot.discord.session = session

	return bot, store, completer, session
}

func newCommandInteraction(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        "test-interaction-id",
			AppID:     "test-app-id",
			Type:      discordgo.InteractionApplicationCommand,
			Token:     "test-interaction-token",
			GuildID:   "test-guild-id",
			ChannelID: "test-channel-id",
			Member: &discordgo.Member{
				User: &discordgo.User{
					ID:       "test-user-id",
					Username: "hamster",
				},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				ID:      name + "-id",
				Name:    name,
				Options: options,
			},
		},
	}
}

func questionOption(question string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  inquireQuestionOption,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: question,
	}
}

var testHeader = []string{"Time Left", "Time Returned", "", "Date", ""}
