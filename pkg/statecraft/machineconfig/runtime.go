package machineconfig

// RuntimeConfig is the ambient configuration vocabulary a deployment loads
// alongside a machine definition: storage, archival, locking, and
// observability settings.
type RuntimeConfig struct {
	MachineFile string `yaml:"machineFile"`

	DB struct {
		Driver string `yaml:"driver"` // "sqlite3", "pgx", "postgres"
		DSN    string `yaml:"dsn"`
	} `yaml:"db"`

	Archival struct {
		Enabled              bool `yaml:"enabled"`
		Level                int  `yaml:"level"`
		Threshold            int  `yaml:"threshold"`
		DaysInactive         int  `yaml:"days_inactive"`
		RestoreCooldownHours int  `yaml:"restore_cooldown_hours"`
		ArchiveRetentionDays *int `yaml:"archive_retention_days"`
	} `yaml:"archival"`

	Lock struct {
		Backend string `yaml:"backend"` // "memory" or "nats"
		NATSURL string `yaml:"nats_url"`
		Bucket  string `yaml:"bucket"`
	} `yaml:"lock"`

	Observability struct {
		JSONLogging  bool   `yaml:"json_logging"`
		LogLevel     string `yaml:"log_level"`
		MetricsAddr  string `yaml:"metrics_addr"`
		TraceBackend string `yaml:"trace_backend"` // "stdout", "jaeger", "zipkin", ""
		TraceURL     string `yaml:"trace_url"`
	} `yaml:"observability"`

	AdminAPI struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
		JWTKey  string `yaml:"jwt_key"`
	} `yaml:"admin_api"`
}
