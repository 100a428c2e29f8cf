// Package config loads service settings from flags, environment and an
// optional config file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/colorfulnotion/fraudproof/assignment"
	"github.com/colorfulnotion/fraudproof/chain"
	"github.com/colorfulnotion/fraudproof/storage"
	"github.com/colorfulnotion/fraudproof/task"
	"github.com/colorfulnotion/fraudproof/telemetry"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag names double as config keys. Environment variables use the upper
// snake form, e.g. DB_URL or TS_SEARCH_RANGE.
const (
	listenAddr          = "listen-addr"
	dbURL               = "db-url"
	dbDatabase          = "db-database"
	dbUser              = "db-user"
	dbPassword          = "db-password"
	tsTolerance         = "ts-tolerance"
	tsSearchRange       = "ts-search-range"
	network             = "network"
	rpcURL              = "rpc-url"
	commiterAddress     = "commiter-address"
	managerAddress      = "manager-address"
	configName          = "config-name"
	signer              = "signer"
	confirmations       = "confirmations"
	confirmationTimeout = "confirmation-timeout"
	proverURL           = "prover-url"
	proverTimeout       = "prover-timeout"
	snapshotURL         = "snapshot-url"
	snapshotRetries     = "snapshot-retries"
	snapshotTimeout     = "snapshot-timeout"
	snapshotCacheDir    = "snapshot-cache-dir"
	quorum              = "quorum"
	queueDepth          = "queue-depth"
	pollInterval        = "poll-interval"
	trieCacheSize       = "trie-cache-size"
	logLevel            = "log-level"
	logModules          = "log-modules"
	otelEndpoint        = "otel-endpoint"
	otelSampleRatio     = "otel-sample-ratio"
)

type Config struct {
	ListenAddr string `mapstructure:"listen-addr"`

	DBURL      string `mapstructure:"db-url"`
	DBDatabase string `mapstructure:"db-database"`
	DBUser     string `mapstructure:"db-user"`
	DBPassword string `mapstructure:"db-password"`

	TsTolerance   uint64 `mapstructure:"ts-tolerance"`
	TsSearchRange uint64 `mapstructure:"ts-search-range"`
	Network       string `mapstructure:"network"`

	RPCURL              string        `mapstructure:"rpc-url"`
	CommiterAddress     string        `mapstructure:"commiter-address"`
	ManagerAddress      string        `mapstructure:"manager-address"`
	ConfigName          string        `mapstructure:"config-name"`
	Signer              string        `mapstructure:"signer"`
	Confirmations       uint64        `mapstructure:"confirmations"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation-timeout"`

	ProverURL     string        `mapstructure:"prover-url"`
	ProverTimeout time.Duration `mapstructure:"prover-timeout"`

	SnapshotURL     string        `mapstructure:"snapshot-url"`
	SnapshotRetries uint64        `mapstructure:"snapshot-retries"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot-timeout"`
	SnapshotCache   string        `mapstructure:"snapshot-cache-dir"`

	Quorum        int           `mapstructure:"quorum"`
	QueueDepth    int           `mapstructure:"queue-depth"`
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	TrieCacheSize int           `mapstructure:"trie-cache-size"`

	LogLevel        string  `mapstructure:"log-level"`
	LogModules      string  `mapstructure:"log-modules"`
	OtelEndpoint    string  `mapstructure:"otel-endpoint"`
	OtelSampleRatio float64 `mapstructure:"otel-sample-ratio"`
}

func Default() Config {
	loader := assignment.DefaultLoaderConfig()
	orch := task.DefaultConfig()
	return Config{
		ListenAddr:          ":8000",
		TsTolerance:         orch.TsTolerance,
		TsSearchRange:       orch.TsSearchRange,
		Network:             loader.Network,
		RPCURL:              "wss://ethereum-sepolia-rpc.publicnode.com",
		CommiterAddress:     "0xD7092928Be395B318cDaeEAE0245b0a66ae357a3",
		ManagerAddress:      "0x9f9d8535e8A2E503E034b142F136ABF3BeCF3CF2",
		ConfigName:          orch.ProofConfigName,
		Confirmations:       2,
		ConfirmationTimeout: 60 * time.Second,
		ProverURL:           "http://localhost:3000",
		ProverTimeout:       30 * time.Minute,
		SnapshotURL:         loader.URLTemplate,
		SnapshotRetries:     loader.Retries,
		SnapshotTimeout:     loader.Timeout,
		Quorum:              orch.Quorum,
		QueueDepth:          orch.QueueDepth,
		PollInterval:        orch.PollInterval,
		TrieCacheSize:       orch.TrieCacheSize,
		LogLevel:            "info",
		LogModules:          "discovery,consensus,chain,assign,evidence,prover,task,api",
		OtelSampleRatio:     1,
	}
}

// BindFlags registers every setting on flags with its default.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String(listenAddr, d.ListenAddr, "address the task API listens on")
	flags.String(dbURL, d.DBURL, "ClickHouse URL (http://, https:// or host:port for the native protocol)")
	flags.String(dbDatabase, d.DBDatabase, "ClickHouse database holding the query logs")
	flags.String(dbUser, d.DBUser, "ClickHouse user")
	flags.String(dbPassword, d.DBPassword, "ClickHouse password")
	flags.Uint64(tsTolerance, d.TsTolerance, "seconds around the task timestamp to look for the disputed query")
	flags.Uint64(tsSearchRange, d.TsSearchRange, "seconds around the task timestamp to look for siblings and signatures")
	flags.String(network, d.Network, "network whose assignments are fetched")
	flags.String(rpcURL, d.RPCURL, "Ethereum RPC endpoint")
	flags.String(commiterAddress, d.CommiterAddress, "assignment commitment contract")
	flags.String(managerAddress, d.ManagerAddress, "proving manager contract")
	flags.String(configName, d.ConfigName, "proving config name passed to verifyAndEmit")
	flags.String(signer, d.Signer, "hex private key signing proof transactions")
	flags.Uint64(confirmations, d.Confirmations, "confirmations required for a proof transaction")
	flags.Duration(confirmationTimeout, d.ConfirmationTimeout, "how long to wait for a proof transaction")
	flags.String(proverURL, d.ProverURL, "zk prover service URL")
	flags.Duration(proverTimeout, d.ProverTimeout, "how long a proof may take")
	flags.String(snapshotURL, d.SnapshotURL, "assignment snapshot location; {network} and {id} are substituted")
	flags.Uint64(snapshotRetries, d.SnapshotRetries, "retries for a failed snapshot download")
	flags.Duration(snapshotTimeout, d.SnapshotTimeout, "timeout for one snapshot download")
	flags.String(snapshotCacheDir, d.SnapshotCache, "LevelDB directory caching downloaded snapshots; empty disables")
	flags.Int(quorum, d.Quorum, "evidence bundles required before proving")
	flags.Int(queueDepth, d.QueueDepth, "submitted tasks buffered ahead of the rescan")
	flags.Duration(pollInterval, d.PollInterval, "how often the orchestrator rescans for pending tasks")
	flags.Int(trieCacheSize, d.TrieCacheSize, "assignment tries kept per task")
	flags.String(logLevel, d.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.String(logModules, d.LogModules, "comma separated log modules to enable")
	flags.String(otelEndpoint, d.OtelEndpoint, "OTLP/HTTP trace collector URL; empty disables tracing")
	flags.Float64(otelSampleRatio, d.OtelSampleRatio, "fraction of tasks traced")
}

// Load merges flags, environment and the optional file, in that order of
// precedence.
func Load(flags *pflag.FlagSet, file string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the serve command cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.DBURL == "" {
		errs = append(errs, errors.New("db-url is required"))
	}
	if c.Signer == "" {
		errs = append(errs, errors.New("signer is required"))
	}
	for name, addr := range map[string]string{commiterAddress: c.CommiterAddress, managerAddress: c.ManagerAddress} {
		if !ethcommon.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("%s %q is not an address", name, addr))
		}
	}
	if c.TsSearchRange < c.TsTolerance {
		errs = append(errs, fmt.Errorf("ts-search-range %d is narrower than ts-tolerance %d", c.TsSearchRange, c.TsTolerance))
	}
	if c.Quorum < 1 {
		errs = append(errs, fmt.Errorf("quorum %d must be at least 1", c.Quorum))
	}
	if !strings.Contains(c.SnapshotURL, "{id}") {
		errs = append(errs, fmt.Errorf("snapshot-url %q has no {id}", c.SnapshotURL))
	}
	return errors.Join(errs...)
}

func (c Config) ClickHouse() storage.ClickHouseConfig {
	return storage.ClickHouseConfig{
		URL:      c.DBURL,
		Database: c.DBDatabase,
		Username: c.DBUser,
		Password: c.DBPassword,
	}
}

func (c Config) Eth() chain.EthConfig {
	return chain.EthConfig{
		RPCURL:              c.RPCURL,
		CommitmentHolder:    c.CommiterAddress,
		ProvingManager:      c.ManagerAddress,
		SignerKey:           c.Signer,
		Confirmations:       c.Confirmations,
		ConfirmationTimeout: c.ConfirmationTimeout,
	}
}

func (c Config) Loader() assignment.LoaderConfig {
	cfg := assignment.DefaultLoaderConfig()
	cfg.URLTemplate = c.SnapshotURL
	cfg.Network = c.Network
	cfg.Retries = c.SnapshotRetries
	cfg.Timeout = c.SnapshotTimeout
	return cfg
}

func (c Config) Orchestrator() task.Config {
	cfg := task.DefaultConfig()
	cfg.TsTolerance = c.TsTolerance
	cfg.TsSearchRange = c.TsSearchRange
	cfg.ProofConfigName = c.ConfigName
	cfg.Quorum = c.Quorum
	cfg.QueueDepth = c.QueueDepth
	cfg.PollInterval = c.PollInterval
	cfg.TrieCacheSize = c.TrieCacheSize
	return cfg
}

func (c Config) Tracing() telemetry.Config {
	return telemetry.Config{
		ServiceName: "fraudproof",
		Network:     c.Network,
		Endpoint:    c.OtelEndpoint,
		Insecure:    strings.HasPrefix(c.OtelEndpoint, "http://"),
		SampleRatio: c.OtelSampleRatio,
	}
}
