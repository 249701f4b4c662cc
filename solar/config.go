//nolint:lll // struct tags can't be split
package solar

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
)

const (
	EnvvarSetEnvPrefix = "SOLAR_ENV_PREFIX"
	DefaultEnvPrefix   = "SOLAR"

	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultAttendanceStore    = attendanceStoreSheets
	DefaultAttendanceTimezone = "America/New_York"

	DefaultSheetsCredentialsFile = "service_account.json"
	DefaultSheetsSpreadsheetName = "Eating Log"
	DefaultSheetsLogLevel        = slog.LevelInfo

	DefaultDatabaseType          = dbTypeSQLite
	DefaultDatabase              = "solar.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelWarn

	DefaultLLMProvider             = llmProviderOpenAI
	DefaultLLMBaseURL              = "https://api.groq.com/openai/v1"
	DefaultLLMModel                = "llama-3.3-70b-versatile"
	DefaultLLMLogLevel             = slog.LevelInfo
	DefaultLLMMaxRequestsPerSecond = 1.0

	// DefaultGeminiModel is used by the gemini provider when llm.model is
	// left at DefaultLLMModel, which only Groq serves
	DefaultGeminiModel = "gemini-2.0-flash"

	DefaultDiscordLogLevel          = slog.LevelInfo
	DefaultDiscordgoLogLevel        = slog.LevelWarn
	DefaultDiscordGatewayIntent     = discordgo.IntentsGuilds
	DefaultDiscordWebhookListen     = "127.0.0.1:5001"
	DefaultDiscordWebhookLogLevel   = slog.LevelInfo
	DefaultDiscordWebhookTLSVersion = tls.VersionTLS12

	DefaultKeepAliveListen   = "0.0.0.0:8080"
	DefaultKeepAliveLogLevel = slog.LevelWarn

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	defaultListenNetwork = "tcp"
)

var (
	DefaultCORSAllowMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	DefaultCORSAllowHeaders = []string{"Origin", "Accept", xRequestIDHeader}
	DefaultCORSMaxAge       = 12 * time.Hour
)

type Config struct {
	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout limits the time allowed to connect to the attendance
	// store and Discord. If exceeded, the bot aborts startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout" binding:"min=0"`

	// ShutdownTimeout is the time allowed for in-flight commands to finish
	// after a stop signal.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout" binding:"min=0"`

	// Development enables gin debug mode on the HTTP servers
	Development bool `yaml:"development" mapstructure:"development" json:"development"`

	// Database connection string, or SQLite file path. Only used when
	// Attendance.Store is 'database'.
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType is either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the threshold for logging slow queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	Attendance *AttendanceConfig `yaml:"attendance" mapstructure:"attendance" json:"attendance" binding:"required"`
	Sheets     *SheetsConfig     `yaml:"sheets" mapstructure:"sheets" json:"sheets" binding:"required"`
	LLM        *LLMConfig        `yaml:"llm" mapstructure:"llm" json:"llm" binding:"required"`
	Discord    *DiscordConfig    `yaml:"discord" mapstructure:"discord" json:"discord" binding:"required"`
	KeepAlive  *KeepAliveConfig  `yaml:"keepalive" mapstructure:"keepalive" json:"keepalive" binding:"required"`

	HTTPClient *http.Client `yaml:"-" mapstructure:"-" json:"-"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// AttendanceConfig selects the attendance table's backing store and
// the time zone used for timestamps
type AttendanceConfig struct {
	// Store is 'sheets' (Google Sheets) or 'database' (see Config.Database)
	Store string `yaml:"store" mapstructure:"store" json:"store" binding:"oneof=sheets database"`

	// Timezone is an IANA time zone name, used to format logged times
	Timezone string `yaml:"timezone" mapstructure:"timezone" json:"timezone" binding:"required"`
}

// SheetsConfig configures access to the Google Sheets attendance table
type SheetsConfig struct {
	// Path to a service account JSON key
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file" json:"credentials_file"`

	// SpreadsheetID takes priority over SpreadsheetName when set
	SpreadsheetID string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id" json:"spreadsheet_id"`

	// SpreadsheetName is the title used to find the spreadsheet via Drive
	SpreadsheetName string `yaml:"spreadsheet_name" mapstructure:"spreadsheet_name" json:"spreadsheet_name"`

	// Worksheet is the sheet (tab) title. Defaults to the first sheet.
	Worksheet string `yaml:"worksheet" mapstructure:"worksheet" json:"worksheet"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// endpoint and httpClient override the Google API endpoint and
	// client, for tests
	endpoint   string
	httpClient *http.Client
}

// LLMConfig configures the chat completion provider used by /prayer and
// /inquire
type LLMConfig struct {
	// Provider is 'openai' (any OpenAI-compatible API, Groq by default)
	// or 'gemini'
	Provider string `yaml:"provider" mapstructure:"provider" json:"provider" binding:"oneof=openai gemini"`

	// API key
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// BaseURL of an OpenAI-compatible API. Ignored for gemini.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	Model string `yaml:"model" mapstructure:"model" json:"model" binding:"required"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// MaxRequestsPerSecond limits outbound completion requests. Requests
	// over the limit wait their turn.
	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second" mapstructure:"max_requests_per_second" json:"max_requests_per_second" binding:"gt=0"`
}

// DiscordConfig configures the discord bot itself.
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id"`

	// GuildID specifies the guild commands are registered to.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// ClearGlobalCommands removes globally registered commands before
	// registering commands to GuildID
	ClearGlobalCommands bool `yaml:"clear_global_commands" mapstructure:"clear_global_commands" json:"clear_global_commands"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// Receive interactions via HTTP rather than the gateway
	WebhookServer DiscordWebhookServerConfig `yaml:"webhook_server" mapstructure:"webhook_server" json:"webhook_server"`

	httpClient *http.Client
}

// DiscordWebhookServerConfig configures the server that receives Discord
// interactions via webhook.
type DiscordWebhookServerConfig struct {
	HTTPServerConfig `yaml:",inline" mapstructure:",squash"`

	// The public key used for verifying Discord interaction POST requests.
	// In the Discord dev portal for your bot, this is under 'General Information'
	PublicKey string `yaml:"public_key" mapstructure:"public_key" json:"public_key"`
}

// KeepAliveConfig configures the liveness endpoint polled by uptime monitors
type KeepAliveConfig struct {
	HTTPServerConfig `yaml:",inline" mapstructure:",squash"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`
}

// HTTPServerConfig holds settings shared by the bot's HTTP servers
type HTTPServerConfig struct {
	// Determines if the server should be active.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5001").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"omitempty,oneof=tcp tcp4 tcp6 unix"`

	// Configuration for SSL/TLS.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The logging level for the server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	// Path to an SSL certificate
	Cert string `yaml:"cert" mapstructure:"cert" json:"cert"`

	// Path to an SSL cert key
	Key string `yaml:"key" mapstructure:"key" json:"key"`

	// Minimum TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	MaxAge       time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	cfg := cors.Config{
		AllowOrigins: c.AllowOrigins,
		AllowMethods: c.AllowMethods,
		AllowHeaders: c.AllowHeaders,
		MaxAge:       c.MaxAge,
	}
	if len(c.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{},
		AllowMethods: append([]string(nil), DefaultCORSAllowMethods...),
		AllowHeaders: append([]string(nil), DefaultCORSAllowHeaders...),
		MaxAge:       DefaultCORSMaxAge,
	}
}

func newLevelVar(level slog.Level) *slog.LevelVar {
	lvl := &slog.LevelVar{}
	lvl.Set(level)
	return lvl
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	return &Config{
		LogLevel:              newLevelVar(DefaultLogLevel),
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      newLevelVar(DefaultDatabaseLogLevel),
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		Attendance: &AttendanceConfig{
			Store:    DefaultAttendanceStore,
			Timezone: DefaultAttendanceTimezone,
		},
		Sheets: &SheetsConfig{
			CredentialsFile: DefaultSheetsCredentialsFile,
			SpreadsheetName: DefaultSheetsSpreadsheetName,
			LogLevel:        newLevelVar(DefaultSheetsLogLevel),
		},
		LLM: &LLMConfig{
			Provider:             DefaultLLMProvider,
			BaseURL:              DefaultLLMBaseURL,
			Model:                DefaultLLMModel,
			LogLevel:             newLevelVar(DefaultLLMLogLevel),
			MaxRequestsPerSecond: DefaultLLMMaxRequestsPerSecond,
		},
		Discord: &DiscordConfig{
			ClearGlobalCommands: true,
			LogLevel:            newLevelVar(DefaultDiscordLogLevel),
			DiscordGoLogLevel:   newLevelVar(DefaultDiscordgoLogLevel),
			GatewayIntents:      DefaultDiscordGatewayIntent,
			WebhookServer: DiscordWebhookServerConfig{
				HTTPServerConfig: HTTPServerConfig{
					Listen:            DefaultDiscordWebhookListen,
					ListenNetwork:     defaultListenNetwork,
					SSL:               SSLConfig{TLSMinVersion: DefaultDiscordWebhookTLSVersion},
					LogLevel:          newLevelVar(DefaultDiscordWebhookLogLevel),
					ReadTimeout:       DefaultReadTimeout,
					ReadHeaderTimeout: DefaultReadHeaderTimeout,
					WriteTimeout:      DefaultWriteTimeout,
					IdleTimeout:       DefaultIdleTimeout,
				},
			},
		},
		KeepAlive: &KeepAliveConfig{
			HTTPServerConfig: HTTPServerConfig{
				Enabled:           true,
				Listen:            DefaultKeepAliveListen,
				ListenNetwork:     defaultListenNetwork,
				LogLevel:          newLevelVar(DefaultKeepAliveLogLevel),
				ReadTimeout:       DefaultReadTimeout,
				ReadHeaderTimeout: DefaultReadHeaderTimeout,
				WriteTimeout:      DefaultWriteTimeout,
				IdleTimeout:       DefaultIdleTimeout,
			},
			CORS: DefaultCORSConfig(),
		},
	}
}
