// Package config loads the pipeline settings from the environment, an
// optional config file and command-line flags, in viper's priority order.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/spf13/viper"
)

// Config holds all configuration for one invocation.
type Config struct {
	Driver      string
	DatabaseURL string
	SQLDir      string
	DataDir     string

	Window models.Window
	// AutoEnd is set when END_MONTH=auto: the window ends at the last
	// calendar month and an unpublished partition is not a failure.
	AutoEnd bool

	RawTable      string
	SilverTable   string
	GoldTable     string
	MetadataTable string
	PipelineName  string

	CheckpointBackend string
	MongoURI          string
	MongoDatabase     string
	CheckpointDir     string

	Source      SourceConfig
	FilePattern string

	DeleteAfterLoad bool
	BatchSize       int

	MappingFile    string
	LogLevel       string
	LogFile        string
	PushgatewayURL string
}

type SourceConfig struct {
	Type     string
	BaseURL  string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
	Dir      string
	Timeout  time.Duration
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("pg_host", "localhost")
	v.SetDefault("pg_port", "5432")
	v.SetDefault("pg_sslmode", "disable")
	v.SetDefault("data_dir", "data")
	v.SetDefault("year", 2024)
	v.SetDefault("raw_table", "raw_taxi_data_2024")
	v.SetDefault("silver_table", "silver_taxi_data_2024")
	v.SetDefault("gold_table", "gold_taxi_summary_2024")
	v.SetDefault("pipeline_metadata", "pipeline_metadata")
	v.SetDefault("pipeline_name", "nyc_taxi_2024")
	v.SetDefault("checkpoint_backend", "sql")
	v.SetDefault("mongo_database", "taxi_etl")
	v.SetDefault("checkpoint_dir", "checkpoints")
	v.SetDefault("source_type", "http")
	v.SetDefault("source_base_url", "https://d37ci6vzurychx.cloudfront.net/trip-data")
	v.SetDefault("file_pattern", "yellow_tripdata_%s.parquet")
	v.SetDefault("http_timeout", "60s")
	v.SetDefault("delete_parquet_after_load", false)
	v.SetDefault("batch_size", 65536)
	v.SetDefault("log_level", "info")
}

// LoadConfig resolves the configuration held by v. Environment variables
// are looked up by their upper-case key names.
func LoadConfig(v *viper.Viper) (*Config, error) {
	return load(v, time.Now())
}

func load(v *viper.Viper, now time.Time) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Driver:            strings.ToLower(v.GetString("db_driver")),
		DatabaseURL:       v.GetString("database_url"),
		SQLDir:            v.GetString("sql_dir"),
		DataDir:           v.GetString("data_dir"),
		RawTable:          v.GetString("raw_table"),
		SilverTable:       v.GetString("silver_table"),
		GoldTable:         v.GetString("gold_table"),
		MetadataTable:     v.GetString("pipeline_metadata"),
		PipelineName:      v.GetString("pipeline_name"),
		CheckpointBackend: strings.ToLower(v.GetString("checkpoint_backend")),
		MongoURI:          v.GetString("mongo_uri"),
		MongoDatabase:     v.GetString("mongo_database"),
		CheckpointDir:     v.GetString("checkpoint_dir"),
		Source: SourceConfig{
			Type:     strings.ToLower(v.GetString("source_type")),
			BaseURL:  strings.TrimRight(v.GetString("source_base_url"), "/"),
			Bucket:   v.GetString("source_bucket"),
			Prefix:   v.GetString("source_prefix"),
			Region:   v.GetString("source_region"),
			Endpoint: v.GetString("source_endpoint"),
			Dir:      v.GetString("source_dir"),
			Timeout:  v.GetDuration("http_timeout"),
		},
		FilePattern:     v.GetString("file_pattern"),
		DeleteAfterLoad: v.GetBool("delete_parquet_after_load"),
		BatchSize:       v.GetInt("batch_size"),
		MappingFile:     v.GetString("mapping_file"),
		LogLevel:        v.GetString("log_level"),
		LogFile:         v.GetString("log_file"),
		PushgatewayURL:  v.GetString("pushgateway_url"),
	}

	if cfg.SQLDir == "" {
		cfg.SQLDir = filepath.Join("sql", cfg.Driver)
	}

	if err := cfg.resolveWindow(v, now); err != nil {
		return nil, err
	}
	if err := cfg.resolveDSN(v); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolveWindow(v *viper.Viper, now time.Time) error {
	year := v.GetInt("year")
	start := v.GetString("start_month")
	if start == "" {
		start = fmt.Sprintf("%04d-01", year)
	}
	first, err := models.ParsePartition(start)
	if err != nil {
		return models.Errorf(models.KindConfigError, "START_MONTH: %v", err)
	}

	end := v.GetString("end_month")
	var last models.Partition
	switch {
	case strings.EqualFold(end, "auto"):
		c.AutoEnd = true
		last = models.PartitionOf(now.UTC()).Prev()
	case end == "":
		last = models.Partition{Year: year, Month: time.December}
	default:
		last, err = models.ParsePartition(end)
		if err != nil {
			return models.Errorf(models.KindConfigError, "END_MONTH: %v", err)
		}
	}

	c.Window = models.Window{First: first, Last: last}
	if err := c.Window.Validate(); err != nil {
		return models.NewError(models.KindConfigError, err)
	}
	return nil
}

func (c *Config) resolveDSN(v *viper.Viper) error {
	if c.DatabaseURL != "" {
		return nil
	}
	if c.Driver != "postgres" {
		return models.Errorf(models.KindConfigError, "DATABASE_URL must be set for driver %q", c.Driver)
	}

	user, db := v.GetString("pg_user"), v.GetString("pg_database")
	if user == "" || db == "" {
		return models.Errorf(models.KindConfigError, "set DATABASE_URL or PG_USER and PG_DATABASE")
	}

	parts := []string{
		"host=" + quoteDSN(v.GetString("pg_host")),
		"port=" + quoteDSN(v.GetString("pg_port")),
		"user=" + quoteDSN(user),
		"dbname=" + quoteDSN(db),
		"sslmode=" + quoteDSN(v.GetString("pg_sslmode")),
	}
	if pw := v.GetString("pg_password"); pw != "" {
		parts = append(parts, "password="+quoteDSN(pw))
	}
	c.DatabaseURL = strings.Join(parts, " ")
	return nil
}

// quoteDSN quotes a libpq key/value connection string value.
func quoteDSN(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

func (c *Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return models.Errorf(models.KindConfigError, format, args...)
	}

	switch c.Driver {
	case "postgres", "sqlserver":
	default:
		return fail("unsupported DB_DRIVER %q", c.Driver)
	}

	switch c.CheckpointBackend {
	case "sql":
	case "mongo":
		if c.MongoURI == "" {
			return fail("MONGO_URI must be set for the mongo checkpoint backend")
		}
	case "file":
		if c.CheckpointDir == "" {
			return fail("CHECKPOINT_DIR must be set for the file checkpoint backend")
		}
	default:
		return fail("unsupported CHECKPOINT_BACKEND %q", c.CheckpointBackend)
	}

	switch c.Source.Type {
	case "http":
		if c.Source.BaseURL == "" {
			return fail("SOURCE_BASE_URL must be set for the http source")
		}
	case "s3", "gcs":
		if c.Source.Bucket == "" {
			return fail("SOURCE_BUCKET must be set for the %s source", c.Source.Type)
		}
	case "file":
		if c.Source.Dir == "" {
			return fail("SOURCE_DIR must be set for the file source")
		}
	default:
		return fail("unsupported SOURCE_TYPE %q", c.Source.Type)
	}

	if strings.Count(c.FilePattern, "%s") != 1 {
		return fail("FILE_PATTERN must contain exactly one %%s")
	}
	if c.Source.Timeout <= 0 {
		return fail("HTTP_TIMEOUT must be positive")
	}
	if c.BatchSize <= 0 {
		return fail("BATCH_SIZE must be positive")
	}
	for key, name := range map[string]string{
		"RAW_TABLE":         c.RawTable,
		"SILVER_TABLE":      c.SilverTable,
		"GOLD_TABLE":        c.GoldTable,
		"PIPELINE_METADATA": c.MetadataTable,
		"PIPELINE_NAME":     c.PipelineName,
	} {
		if name == "" {
			return fail("%s must not be empty", key)
		}
	}
	return nil
}
