package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the pbxctl command tree
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "pbxctl",
		Short: "pbxlive operator tools",
		Long: `pbxctl inspects persisted pbxlive history and replays captured
manager event streams through a local engine.

Settings come from --config (yaml), PBXLIVE_* environment variables or flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, cfgFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (yaml)")
	flags.String("store-mode", "", "Storage backend: dynamodb-local, dynamodb, postgres")
	flags.String("database-url", "", "Postgres connection string")
	flags.String("dynamo-endpoint", "", "DynamoDB endpoint (dynamodb-local only)")
	flags.BoolP("verbose", "v", false, "Log engine activity to stderr")

	_ = v.BindPFlag("store.mode", flags.Lookup("store-mode"))
	_ = v.BindPFlag("store.database_url", flags.Lookup("database-url"))
	_ = v.BindPFlag("store.endpoint", flags.Lookup("dynamo-endpoint"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))

	rootCmd.AddCommand(
		newReplayCommand(v),
		newShiftsCommand(v),
		newQueueStatsCommand(v),
		newAgentsCommand(v),
	)

	return rootCmd
}

func loadConfig(v *viper.Viper, file string) error {
	v.SetEnvPrefix("PBXLIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("sl.threshold", 60)
	v.SetDefault("sl.target", 80)
	v.SetDefault("recording_dir", "/var/spool/asterisk/monitor")

	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", file, err)
	}
	return nil
}

// storeConfig starts from the server's environment and applies pbxctl overrides
func storeConfig(v *viper.Viper) (storage.Config, error) {
	cfg := storage.LoadConfig()

	overrides := map[string]*string{
		"store.endpoint":     &cfg.Endpoint,
		"store.region":       &cfg.Region,
		"store.calls_table":  &cfg.CallsTable,
		"store.agents_table": &cfg.AgentsTable,
		"store.shifts_table": &cfg.ShiftsTable,
		"store.stats_table":  &cfg.StatsTable,
		"store.database_url": &cfg.DatabaseURL,
	}
	for key, field := range overrides {
		if v.IsSet(key) && v.GetString(key) != "" {
			*field = v.GetString(key)
		}
	}

	if v.IsSet("store.mode") && v.GetString("store.mode") != "" {
		cfg.Mode = storage.Mode(v.GetString("store.mode"))
	}

	switch cfg.Mode {
	case storage.ModeDynamoLocal, storage.ModeDynamoAWS, storage.ModePostgres:
		return cfg, nil
	case storage.ModeNone:
		return cfg, fmt.Errorf("no store configured: set --store-mode or STORE_MODE")
	default:
		return cfg, fmt.Errorf("unknown store mode %q", cfg.Mode)
	}
}

func openStore(cmd *cobra.Command, v *viper.Viper) (storage.Store, error) {
	cfg, err := storeConfig(v)
	if err != nil {
		return nil, err
	}
	return storage.NewStore(cmd.Context(), cfg, newLogger(v))
}

func newLogger(v *viper.Viper) zerolog.Logger {
	if !v.GetBool("verbose") {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}
