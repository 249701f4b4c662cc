package solar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/acc2soldier2-cmd/Solar/solar.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

// Bot is the Solar discord bot. It logs departures and returns to the
// attendance table, and relays prompts to the configured chat model.
type Bot struct {
	config   *Config
	logger   *slog.Logger
	location *time.Location

	discord    *Discord
	attendance *AttendanceLog
	store      TableStore
	completer  Completer

	webhookServer   *DiscordWebhookServer
	keepAliveServer *KeepAliveServer

	// getInteractionHandlerFunc returns the InteractionHandler used to
	// respond to an interaction. Commands run the same way across webhook
	// and gateway interactions, only the handler differs.
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler

	// interactionWG tracks commands in progress, so shutdown can wait
	// for them
	interactionWG sync.WaitGroup

	startedAt time.Time

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// signalReady has a value sent on it once Run has finished starting up
	signalReady chan struct{}
}

// New validates the configuration and returns a new Bot. Connections to
// Discord, the attendance store and the chat model are made by Run.
func New(config *Config) (*Bot, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	location, err := time.LoadLocation(config.Attendance.Timezone)
	if err != nil {
		return nil, &StartupError{Component: "attendance", Err: err}
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &Bot{
		config:      config,
		location:    location,
		signalReady: make(chan struct{}, 1),
		logger:      newComponentLogger("solar", config.LogLevel),
	}
	slog.SetDefault(b.logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newComponentLogger("discordgo", config.Discord.DiscordGoLogLevel).Handler(),
	)

	config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(config.Discord)
	if err != nil {
		return nil, &StartupError{Component: "discord", Err: err}
	}
	b.discord = disc

	b.getInteractionHandlerFunc = func(
		_ context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler {
		return GatewayHandler{
			session:     b.discord.session,
			interaction: i,
			logger: b.discord.logger.With(
				slog.Group("interaction", interactionLogAttrs(*i)...),
			),
		}
	}

	if config.KeepAlive.Enabled {
		ka, kaErr := newKeepAliveServer(b, config.KeepAlive)
		if kaErr != nil {
			return nil, &StartupError{Component: "keepalive", Err: kaErr}
		}
		b.keepAliveServer = ka
	}

	return b, nil
}

// ValidateConfig checks the configuration, returning all problems found
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.New("config not set")
	}
	if err := structValidator.Struct(config); err != nil {
		return err
	}

	var errs []error
	if config.Discord.Token == "" {
		errs = append(errs, ErrMissingDiscordToken)
	}
	webhook := config.Discord.WebhookServer
	if webhook.Enabled && webhook.PublicKey == "" {
		errs = append(errs, errors.New("discord webhook server requires a public key"))
	}
	switch config.Attendance.Store {
	case attendanceStoreSheets, attendanceStoreDatabase:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownStore, config.Attendance.Store))
	}
	switch config.LLM.Provider {
	case llmProviderOpenAI, llmProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownLLMProvider, config.LLM.Provider))
	}
	return errors.Join(errs...)
}

// OpenStore connects to the configured attendance store. Database stores
// are migrated, and get a header row if empty.
func OpenStore(ctx context.Context, config *Config) (TableStore, error) {
	switch config.Attendance.Store {
	case attendanceStoreSheets:
		return NewSheetsStore(
			ctx,
			config.Sheets,
			newComponentLogger("sheets", config.Sheets.LogLevel),
		)
	case attendanceStoreDatabase:
		db, err := CreateDB(
			ctx,
			config.DatabaseType,
			config.Database,
			newComponentLogger("database", config.DatabaseLogLevel),
			config.DatabaseSlowThreshold,
		)
		if err != nil {
			return nil, &StartupError{Component: "database", Err: err}
		}
		store := NewDatabaseStore(db)
		if err = store.InitTable(ctx); err != nil {
			return nil, &StartupError{Component: "database", Err: err}
		}
		return store, nil
	default:
		return nil, &StartupError{
			Component: "attendance",
			Err:       fmt.Errorf("%w: %q", ErrUnknownStore, config.Attendance.Store),
		}
	}
}

// Run connects to the attendance store, chat model and Discord, then
// handles commands until the context is canceled. In-flight commands
// get up to Config.ShutdownTimeout to finish.
func (b *Bot) Run(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()
	logger := b.logger
	ctx = WithLogger(ctx, logger)

	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", b.config))

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()
	if err := b.initRun(startCtx, ctx); err != nil {
		logger.ErrorContext(ctx, "init error", tint.Err(err))
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if b.keepAliveServer != nil {
		g.Go(
			func() error {
				if err := b.keepAliveServer.Serve(gctx, b.config.ShutdownTimeout); err != nil {
					logger.ErrorContext(gctx, "error serving keepalive HTTP", tint.Err(err))
				}
				return nil
			},
		)
	}

	if b.webhookServer != nil {
		g.Go(
			func() error {
				if err := b.webhookServer.Serve(gctx, b.config.ShutdownTimeout); err != nil {
					logger.ErrorContext(gctx, "error serving webhook HTTP", tint.Err(err))
					return err
				}
				return nil
			},
		)
	}

	logger.InfoContext(ctx, "connecting to discord")
	if err := b.discord.session.Open(); err != nil {
		logger.ErrorContext(ctx, "error connecting to discord!", tint.Err(err))
		cancel()
		_ = g.Wait()
		return &StartupError{Component: "discord", Err: err}
	}

	select {
	case b.signalReady <- struct{}{}:
	default:
	}
	logger.InfoContext(ctx, "ready")

	<-gctx.Done()
	return b.shutdown(ctx, g)
}

// initRun sets up anything not already set: the attendance log, the
// completer, the discord session and the webhook server
func (b *Bot) initRun(startCtx context.Context, runCtx context.Context) error {
	if b.attendance == nil {
		store, err := OpenStore(startCtx, b.config)
		if err != nil {
			return err
		}
		b.store = store
		b.attendance = NewAttendanceLog(
			store,
			b.location,
			newComponentLogger("attendance", b.config.LogLevel),
		)
	}

	if b.completer == nil {
		completer, err := NewCompleter(startCtx, b.config.LLM, b.config.HTTPClient)
		if err != nil {
			return err
		}
		b.completer = completer
	}

	if b.discord.session == nil {
		session, err := b.discord.newSession()
		if err != nil {
			return &StartupError{Component: "discord", Err: err}
		}
		b.discord.session = session
	}
	b.initDiscordSession(runCtx)

	if b.config.Discord.WebhookServer.Enabled && b.webhookServer == nil {
		srv, err := newWebhookServer(runCtx, b, b.config.Discord.WebhookServer)
		if err != nil {
			return &StartupError{Component: "discord_webhook", Err: err}
		}
		b.webhookServer = srv
	}

	return startCtx.Err()
}

// initDiscordSession sets the gateway identity and adds the bot's
// event handlers to the session
func (b *Bot) initDiscordSession(ctx context.Context) {
	d := b.discord
	for _, h := range d.discordgoRemoveHandlerFuncs {
		h()
	}

	d.session.SetIdentify(discordgo.Identify{Intents: b.config.Discord.GatewayIntents})

	// commands already in progress are allowed to finish on shutdown
	cmdCtx := context.WithoutCancel(ctx)

	d.discordgoRemoveHandlerFuncs = []func(){
		d.session.AddHandler(d.handlerConnect()),
		d.session.AddHandler(d.handlerDisconnect()),
		d.session.AddHandler(d.handlerReady()),
		d.session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				handler := b.getInteractionHandlerFunc(cmdCtx, i)
				b.interactionWG.Add(1)
				go func() {
					defer b.interactionWG.Done()
					b.handleInteraction(cmdCtx, handler)
				}()
			},
		),
	}
}

func (b *Bot) shutdown(ctx context.Context, g *errgroup.Group) error {
	logger := b.logger
	shutdownStart := time.Now()
	logger.WarnContext(
		ctx,
		"shutting down",
		"shutdown_timeout", b.config.ShutdownTimeout,
	)

	for _, h := range b.discord.discordgoRemoveHandlerFuncs {
		h()
	}
	b.discord.discordgoRemoveHandlerFuncs = nil
	if err := b.discord.session.Close(); err != nil {
		logger.WarnContext(ctx, "error closing discord session", tint.Err(err))
	}

	var errs []error
	finished := make(chan struct{})
	go func() {
		b.interactionWG.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		logger.InfoContext(
			ctx,
			"finished handling in-flight commands",
			"duration", time.Since(shutdownStart),
		)
	case <-time.After(b.config.ShutdownTimeout):
		errs = append(errs, errors.New("in-flight commands did not finish in time"))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}

	if closer, ok := b.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.ErrorContext(ctx, "shutdown finished with errors", tint.Err(err))
	} else {
		logger.InfoContext(ctx, "shutdown complete")
	}
	return err
}
