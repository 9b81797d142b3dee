package domain

import "time"

// Config holds the complete Senninha configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are wired in.
	Tier Tier `json:"tier"`

	// Profile holds the eligibility thresholds and the qualification gate.
	Profile ProfileConfig `json:"profile"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Export     ExportConfig     `json:"export"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// SumGate selects which per-row eligibility flag feeds the per-client
// qualification sum. Source revisions disagree on this, so it is explicit
// configuration rather than a baked-in choice.
type SumGate string

const (
	// GateGroup sums rows where the grouped "perfila" verdict holds.
	GateGroup SumGate = "group"

	// GateIndividual sums rows where the per-row verdict holds, ignoring the
	// group veto.
	GateIndividual SumGate = "individual"
)

// ProfileConfig holds the eligibility engine thresholds.
type ProfileConfig struct {
	// QualificationMin is the minimum eligible-debt sum for a client to
	// qualify for an offer.
	QualificationMin float64 `json:"qualificationMin"`

	// AutoLoanMin is the minimum outstanding amount for an automobile credit
	// line to be individually eligible (and to fast-track past a group veto).
	AutoLoanMin float64 `json:"autoLoanMin"`

	// Gate selects the eligibility flag feeding the qualification sum.
	Gate SumGate `json:"gate"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ExportConfig holds the output directory layout for the file exporters.
type ExportConfig struct {
	// BaseDir is the root of the maps output tree.
	BaseDir string `json:"baseDir"`

	// Subdirectories under BaseDir. Defaults mirror the report layout:
	// customers/, no_perfila/, outputs/csv, outputs/json, outputs/xlsx.
	CustomersDir string `json:"customersDir"`
	RejectedDir  string `json:"rejectedDir"`
	CSVDir       string `json:"csvDir"`
	JSONDir      string `json:"jsonDir"`
	XLSXDir      string `json:"xlsxDir"`

	// MaxConcurrentWrites bounds concurrent per-client file writes.
	MaxConcurrentWrites int `json:"maxConcurrentWrites"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Profile: ProfileConfig{
			QualificationMin: 6000.0,
			AutoLoanMin:      10000.0,
			Gate:             GateGroup,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./senninha.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Export: ExportConfig{
			BaseDir:             "./maps",
			CustomersDir:        "customers",
			RejectedDir:         "no_perfila",
			CSVDir:              "outputs/csv",
			JSONDir:             "outputs/json",
			XLSXDir:             "outputs/xlsx",
			MaxConcurrentWrites: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "senninha",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "senninha",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
