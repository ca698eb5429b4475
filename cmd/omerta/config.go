package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the JSON configuration file structure.
type Config struct {
	General GeneralConfig `json:"general"`
	Program ProgramConfig `json:"program"`
	RPC     RPCConfig     `json:"rpc"`
	Metrics MetricsConfig `json:"metrics"`
	Journal JournalConfig `json:"journal"`
}

// GeneralConfig holds general application settings.
type GeneralConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	// Store is "badger" or "memory".
	Store   string `json:"store"`
	Keypair string `json:"keypair"`
}

// ProgramConfig selects the token program deployment.
type ProgramConfig struct {
	ProgramID     string `json:"program_id"`
	AuthorityMode string `json:"authority_mode"`
	Cap           uint64 `json:"cap"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// JournalConfig points at the PostgreSQL transaction journal. An empty DSN
// disables it.
type JournalConfig struct {
	DSN string `json:"dsn"`
}

func defaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DataDir:  defaultDataDir(),
			LogLevel: "info",
			Store:    "badger",
			Keypair:  defaultKeypairPath(),
		},
		Program: ProgramConfig{
			AuthorityMode: "derived",
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    ":8899",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".omerta"
	}
	return home + "/.omerta"
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return home + "/.config/omerta/id.json"
}

// loadConfig reads the JSON file at path over the defaults, then applies
// OMERTA_* environment variables. A missing file is not an error. Variables
// from envFile, when it exists, are loaded first without overriding the
// real environment.
func loadConfig(path, envFile string) (Config, bool, error) {
	cfg := defaultConfig()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return cfg, false, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	found := false
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, false, fmt.Errorf("failed to parse config file: %w", err)
		}
		found = true
	case !os.IsNotExist(err):
		return cfg, false, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, found, err
	}
	return cfg, found, nil
}

// applyEnv overrides cfg from OMERTA_* variables.
func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := os.LookupEnv(name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
		return nil
	}

	str("OMERTA_DATA_DIR", &cfg.General.DataDir)
	str("OMERTA_LOG_LEVEL", &cfg.General.LogLevel)
	str("OMERTA_STORE", &cfg.General.Store)
	str("OMERTA_KEYPAIR", &cfg.General.Keypair)
	str("OMERTA_PROGRAM_ID", &cfg.Program.ProgramID)
	str("OMERTA_AUTHORITY_MODE", &cfg.Program.AuthorityMode)
	str("OMERTA_RPC_ADDR", &cfg.RPC.Addr)
	str("OMERTA_METRICS_ADDR", &cfg.Metrics.Addr)
	str("OMERTA_JOURNAL_DSN", &cfg.Journal.DSN)

	if v, ok := os.LookupEnv("OMERTA_CAP"); ok {
		c, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OMERTA_CAP: %w", err)
		}
		cfg.Program.Cap = c
	}
	if err := boolean("OMERTA_RPC_ENABLED", &cfg.RPC.Enabled); err != nil {
		return err
	}
	return boolean("OMERTA_METRICS_ENABLED", &cfg.Metrics.Enabled)
}

// globalFlags are accepted before the subcommand.
type globalFlags struct {
	configFile    *string
	envFile       *string
	dataDir       *string
	logLevel      *string
	store         *string
	keypair       *string
	programID     *string
	authorityMode *string
	journalDSN    *string
	showVersion   *bool
}

func registerGlobalFlags(fs *flag.FlagSet) *globalFlags {
	return &globalFlags{
		configFile:    fs.String("config", "omerta.json", "Path to JSON configuration file"),
		envFile:       fs.String("env-file", ".env", "Path to a .env file with OMERTA_* variables"),
		dataDir:       fs.String("data-dir", "", "Data directory for the account store"),
		logLevel:      fs.String("log-level", "", "Log level: debug, info, warn, error"),
		store:         fs.String("store", "", "Account store: badger or memory"),
		keypair:       fs.String("keypair", "", "Signer keypair file"),
		programID:     fs.String("program-id", "", "Token program id (base58)"),
		authorityMode: fs.String("authority-mode", "", "Mint authority binding: derived or payer"),
		journalDSN:    fs.String("journal-dsn", "", "PostgreSQL DSN for the transaction journal"),
		showVersion:   fs.Bool("version", false, "Print version and exit"),
	}
}

// applyConfigWithCLIOverrides lets explicitly set flags win over the file
// and environment.
func applyConfigWithCLIOverrides(fs *flag.FlagSet, g *globalFlags, cfg *Config) {
	flagSet := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		flagSet[f.Name] = true
	})

	if flagSet["data-dir"] {
		cfg.General.DataDir = *g.dataDir
	}
	if flagSet["log-level"] {
		cfg.General.LogLevel = *g.logLevel
	}
	if flagSet["store"] {
		cfg.General.Store = *g.store
	}
	if flagSet["keypair"] {
		cfg.General.Keypair = *g.keypair
	}
	if flagSet["program-id"] {
		cfg.Program.ProgramID = *g.programID
	}
	if flagSet["authority-mode"] {
		cfg.Program.AuthorityMode = *g.authorityMode
	}
	if flagSet["journal-dsn"] {
		cfg.Journal.DSN = *g.journalDSN
	}
}
