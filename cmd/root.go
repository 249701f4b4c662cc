package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/acc2soldier2-cmd/Solar/solar"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = solar.DefaultConfig()
	configFile string
)

// logLevelKeys are the config keys holding a *slog.LevelVar
var logLevelKeys = []string{
	"log_level",
	"database_log_level",
	"sheets.log_level",
	"llm.log_level",
	"discord.log_level",
	"discord.discordgo_log_level",
	"discord.webhook_server.log_level",
	"keepalive.log_level",
}

// stringSliceKeys are set from space-separated environment values
var stringSliceKeys = []string{
	"keepalive.cors.allow_origins",
	"keepalive.cors.allow_methods",
	"keepalive.cors.allow_headers",
}

var rootCmd = &cobra.Command{
	Use:   "solar [flags]",
	Short: "Solar logs eating times to a spreadsheet and speaks for a hamster god",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := loadConfig(cfg); err != nil {
			log.Fatalln(err)
		}
	},
}

func loadConfig(config *solar.Config) error {
	return viper.Unmarshal(
		config,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
		// slices replace the defaults rather than being merged into them
		func(dc *mapstructure.DecoderConfig) {
			dc.ZeroFields = true
		},
	)
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("unable to load %s: %v", configFile, err)
		}
	}

	setDefaults(solar.DefaultConfig())

	envPrefix := os.Getenv(solar.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = solar.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	fatalErr := func(err error) {
		if err != nil {
			log.Fatalf("error: %v", err)
		}
	}

	// Names used by earlier deployments. When more than one name is bound,
	// viper doesn't apply the prefix, so the prefixed name is listed first.
	prefixed := func(key string) string {
		return envPrefix + "_" + strings.ToUpper(replacer.Replace(key))
	}
	fatalErr(viper.BindEnv("discord.token", prefixed("discord.token"), "DISCORD_TOKEN"))
	fatalErr(viper.BindEnv("llm.token", prefixed("llm.token"), "GROQ_API_KEY"))
	fatalErr(
		viper.BindEnv(
			"sheets.credentials_file",
			prefixed("sheets.credentials_file"),
			"GOOGLE_APPLICATION_CREDENTIALS",
		),
	)

	for _, key := range stringSliceKeys {
		viper.Set(key, viper.GetStringSlice(key))
	}

	for _, key := range logLevelKeys {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

// setDefaults registers every config key with viper, so each can be set
// from the environment
func setDefaults(d *solar.Config) {
	viper.SetDefault("log_level", d.LogLevel.Level().String())
	viper.SetDefault("startup_timeout", d.StartupTimeout)
	viper.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	viper.SetDefault("development", d.Development)

	viper.SetDefault("database", d.Database)
	viper.SetDefault("database_type", d.DatabaseType)
	viper.SetDefault("database_slow_threshold", d.DatabaseSlowThreshold)
	viper.SetDefault("database_log_level", d.DatabaseLogLevel.Level().String())

	// Attendance table
	viper.SetDefault("attendance.store", d.Attendance.Store)
	viper.SetDefault("attendance.timezone", d.Attendance.Timezone)

	// Google Sheets
	viper.SetDefault("sheets.credentials_file", d.Sheets.CredentialsFile)
	viper.SetDefault("sheets.spreadsheet_id", d.Sheets.SpreadsheetID)
	viper.SetDefault("sheets.spreadsheet_name", d.Sheets.SpreadsheetName)
	viper.SetDefault("sheets.worksheet", d.Sheets.Worksheet)
	viper.SetDefault("sheets.log_level", d.Sheets.LogLevel.Level().String())

	// Chat model
	viper.SetDefault("llm.provider", d.LLM.Provider)
	viper.SetDefault("llm.token", "")
	viper.SetDefault("llm.base_url", d.LLM.BaseURL)
	viper.SetDefault("llm.model", d.LLM.Model)
	viper.SetDefault("llm.log_level", d.LLM.LogLevel.Level().String())
	viper.SetDefault("llm.max_requests_per_second", d.LLM.MaxRequestsPerSecond)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.clear_global_commands", d.Discord.ClearGlobalCommands)
	viper.SetDefault("discord.log_level", d.Discord.LogLevel.Level().String())
	viper.SetDefault(
		"discord.discordgo_log_level",
		d.Discord.DiscordGoLogLevel.Level().String(),
	)
	viper.SetDefault("discord.gateway_intents", int(d.Discord.GatewayIntents))

	// Discord: Webhook server
	viper.SetDefault("discord.webhook_server.public_key", "")
	setHTTPServerDefaults("discord.webhook_server", d.Discord.WebhookServer.HTTPServerConfig)

	// Keep-alive server
	setHTTPServerDefaults("keepalive", d.KeepAlive.HTTPServerConfig)
	viper.SetDefault("keepalive.cors.allow_origins", d.KeepAlive.CORS.AllowOrigins)
	viper.SetDefault("keepalive.cors.allow_methods", d.KeepAlive.CORS.AllowMethods)
	viper.SetDefault("keepalive.cors.allow_headers", d.KeepAlive.CORS.AllowHeaders)
	viper.SetDefault("keepalive.cors.max_age", d.KeepAlive.CORS.MaxAge)
}

func setHTTPServerDefaults(prefix string, d solar.HTTPServerConfig) {
	viper.SetDefault(prefix+".enabled", d.Enabled)
	viper.SetDefault(prefix+".listen", d.Listen)
	viper.SetDefault(prefix+".listen_network", d.ListenNetwork)
	viper.SetDefault(prefix+".log_level", d.LogLevel.Level().String())
	viper.SetDefault(prefix+".read_timeout", d.ReadTimeout)
	viper.SetDefault(prefix+".read_header_timeout", d.ReadHeaderTimeout)
	viper.SetDefault(prefix+".write_timeout", d.WriteTimeout)
	viper.SetDefault(prefix+".idle_timeout", d.IdleTimeout)
	viper.SetDefault(prefix+".ssl.cert", d.SSL.Cert)
	viper.SetDefault(prefix+".ssl.key", d.SSL.Key)
	viper.SetDefault(prefix+".ssl.tls_min_version", d.SSL.TLSMinVersion)
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Env file to load before reading the environment",
	)
}
