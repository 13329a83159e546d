package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ConfigStruct is the glue for all configuration sections
type ConfigStruct struct {
	Common   CommonConf   `toml:"common"`
	Database DatabaseConf `toml:"database"`
	Grader   GraderConf   `toml:"grader"`
	Storage  StorageConf  `toml:"storage"`
	Metrics  MetricsConf  `toml:"metrics"`
	Otel     OtelConf     `toml:"otel"`
}

// CommonConf is the data required for all services
type CommonConf struct {
	LogDir string `toml:"log_dir"`
	Debug  bool   `toml:"debug"`
}

// DatabaseConf is the data required to establish a PostgreSQL connection
type DatabaseConf struct {
	DSN      string `toml:"dsn"`
	MaxConns int32  `toml:"max_conns"`
}

type GraderConf struct {
	// Hostname is reported in the grader heartbeat. Defaults to os.Hostname().
	Hostname string `toml:"hostname"`

	BoxPath       string   `toml:"box_path"`
	SyscallFlags  []string `toml:"syscall_flags"`
	CheckerWallTL float64  `toml:"checker_wall_limit"`

	PollInterval Duration `toml:"poll_interval"`
	LeaseTTL     Duration `toml:"lease_ttl"`

	// RetryDelay holds a submission back after an aborted judging. After
	// MaxAttempts aborted judgings it waits for a regrade request.
	RetryDelay  Duration `toml:"retry_delay"`
	MaxAttempts int      `toml:"max_attempts"`

	// OutputLimitKB enables the Output Limit Exceeded verdict when positive.
	OutputLimitKB int `toml:"output_limit_kb"`
}

// StorageConf holds the roots of the on-disk layout.
type StorageConf struct {
	SubmissionPath string `toml:"submission_path"`
	TestcasePath   string `toml:"testcase_path"`
	CheckerPath    string `toml:"checker_path"`
}

type MetricsConf struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type OtelConf struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// Duration is a time.Duration written as a string ("1s", "30s") in the config file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

var (
	Common   CommonConf
	Database DatabaseConf
	Grader   GraderConf
	Storage  StorageConf
	Metrics  MetricsConf
	Otel     OtelConf
)

// Default returns the configuration used for keys missing from the file.
func Default() ConfigStruct {
	return ConfigStruct{
		Common: CommonConf{
			LogDir: "./logs",
		},
		Database: DatabaseConf{
			DSN:      "postgres://regrader@localhost:5432/regrader?sslmode=disable",
			MaxConns: 10,
		},
		Grader: GraderConf{
			BoxPath:       "moe/obj/box/box",
			SyscallFlags:  []string{"-f", "-a3"},
			CheckerWallTL: 5,
			PollInterval:  Duration{time.Second},
			LeaseTTL:      Duration{30 * time.Second},
			RetryDelay:    Duration{30 * time.Second},
			MaxAttempts:   5,
		},
		Storage: StorageConf{
			SubmissionPath: "./data/submissions",
			TestcasePath:   "./data/testcases",
			CheckerPath:    "./data/checkers",
		},
		Metrics: MetricsConf{
			Port: 8071,
		},
		Otel: OtelConf{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "regrader",
		},
	}
}

func Load(path string) error {
	c := Default()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		slog.Warn("Config file not found, using defaults", slog.String("path", path))
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("There were a few undecoded keys", slog.Any("keys", undecoded))
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Couldn't load .env file", slog.Any("err", err))
	}
	applyEnv(&c)

	if c.Grader.Hostname == "" {
		c.Grader.Hostname, _ = os.Hostname()
	}

	Set(c)
	return nil
}

// Set replaces the loaded configuration.
func Set(c ConfigStruct) {
	Common = c.Common
	Database = c.Database
	Grader = c.Grader
	Storage = c.Storage
	Metrics = c.Metrics
	Otel = c.Otel
}

// Current returns the loaded configuration as one struct.
func Current() ConfigStruct {
	return ConfigStruct{
		Common:   Common,
		Database: Database,
		Grader:   Grader,
		Storage:  Storage,
		Metrics:  Metrics,
		Otel:     Otel,
	}
}

func Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := toml.NewEncoder(file)
	enc.Indent = "\t"
	return enc.Encode(Current())
}

func applyEnv(c *ConfigStruct) {
	if v, ok := os.LookupEnv("REGRADER_DB_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := os.LookupEnv("REGRADER_HOSTNAME"); ok {
		c.Grader.Hostname = v
	}
	if v, ok := os.LookupEnv("REGRADER_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Common.Debug = b
		}
	}
}
