// Package config loads tunables and backend settings from defaults, an
// optional config file, a .env file, TREESYNC_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
)

const envPrefix = "TREESYNC"

type Config struct {
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	HDFS        HDFSConfig        `mapstructure:"hdfs"`
	Executor    ExecutorConfig    `mapstructure:"executor"`
	Partition   PartitionConfig   `mapstructure:"partition"`
	Staging     StagingConfig     `mapstructure:"staging"`
	Log         LogConfig         `mapstructure:"log"`
}

type ObjectStoreConfig struct {
	// Provider is aws or minio.
	Provider     string `mapstructure:"provider" default:"aws"`
	Region       string `mapstructure:"region" default:""`
	Profile      string `mapstructure:"profile" default:""`
	Endpoint     string `mapstructure:"endpoint" default:""`
	AccessKey    string `mapstructure:"access_key" default:""`
	SecretKey    string `mapstructure:"secret_key" default:""`
	UseSSL       bool   `mapstructure:"use_ssl" default:"true"`
	UsePathStyle bool   `mapstructure:"use_path_style" default:"false"`
}

type HDFSConfig struct {
	// Namenode serves hdfs:/// paths that name no authority.
	Namenode string `mapstructure:"namenode" default:""`
	User     string `mapstructure:"user" default:""`
}

type ExecutorConfig struct {
	QueueDepth     int           `mapstructure:"queue_depth" default:"100"`
	Workers        int           `mapstructure:"workers" default:"10"`
	ChunkSizeMB    int           `mapstructure:"chunk_size_mb" default:"32"`
	Multipart      bool          `mapstructure:"multipart" default:"true"`
	Checksum       bool          `mapstructure:"checksum" default:"true"`
	MaxAttempts    int           `mapstructure:"max_attempts" default:"3"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" default:"0s"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" default:"100ms"`
}

// ChunkSize returns the multipart threshold and chunk size in bytes.
func (c ExecutorConfig) ChunkSize() int64 {
	return int64(c.ChunkSizeMB) << 20
}

type PartitionConfig struct {
	Groups     int   `mapstructure:"groups" default:"8"`
	UnitWeight int64 `mapstructure:"unit_weight" default:"1000"`
	// Parallelism is how many groups run at once when groups are executed
	// in-process instead of by the batch framework.
	Parallelism int `mapstructure:"parallelism" default:"2"`
}

type StagingConfig struct {
	// Dir is a backend-qualified directory under which each run stages its
	// serialized groups.
	Dir string `mapstructure:"dir" default:"/tmp/strict-tree-sync"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" default:"info"`
	Format string `mapstructure:"format" default:"text"`
}

// ObjectStore converts the section to the client configuration.
func (c ObjectStoreConfig) ObjectStore() objstore.Config {
	return objstore.Config{
		Provider:     c.Provider,
		Region:       c.Region,
		Profile:      c.Profile,
		Endpoint:     c.Endpoint,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
		UseSSL:       c.UseSSL,
		UsePathStyle: c.UsePathStyle,
	}
}

// FileSystem converts the section to the filesystem configuration.
func (c HDFSConfig) FileSystem() fsys.Config {
	return fsys.Config{
		HDFSNamenode: c.Namenode,
		HDFSUser:     c.User,
	}
}

// Options controls where Load looks for settings.
type Options struct {
	// EnvFile is loaded with godotenv.Overload when it exists.
	EnvFile string
	// ConfigFile is read when non-empty; a missing file is an error.
	ConfigFile string
	// Flags are bound to config keys through FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"region":           "object_store.region",
	"profile":          "object_store.profile",
	"endpoint":         "object_store.endpoint",
	"provider":         "object_store.provider",
	"hdfs-namenode":    "hdfs.namenode",
	"hdfs-user":        "hdfs.user",
	"queue-depth":      "executor.queue_depth",
	"workers":          "executor.workers",
	"chunk-size-mb":    "executor.chunk_size_mb",
	"multipart":        "executor.multipart",
	"checksum":         "executor.checksum",
	"max-attempts":     "executor.max_attempts",
	"attempt-timeout":  "executor.attempt_timeout",
	"retry-base-delay": "executor.retry_base_delay",
	"groups":           "partition.groups",
	"unit-weight":      "partition.unit_weight",
	"parallelism":      "partition.parallelism",
	"staging-dir":      "staging.dir",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

// Load builds a Config from every configured source and validates it.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		// Ignore error if file doesn't exist
		_ = godotenv.Overload(opts.EnvFile)
	}

	v := viper.New()
	bindValues(v, Config{}, "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read '%s': %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration made of defaults only.
func Default() *Config {
	v := viper.New()
	bindValues(v, Config{}, "")
	var cfg Config
	// Defaults are literals in struct tags and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects non-positive tunables.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int64{
		"executor.queue_depth":   int64(c.Executor.QueueDepth),
		"executor.workers":       int64(c.Executor.Workers),
		"executor.chunk_size_mb": int64(c.Executor.ChunkSizeMB),
		"executor.max_attempts":  int64(c.Executor.MaxAttempts),
		"partition.groups":       int64(c.Partition.Groups),
		"partition.parallelism":  int64(c.Partition.Parallelism),
	}
	for key, value := range positive {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, value))
		}
	}
	if c.Partition.UnitWeight < 0 {
		errs = append(errs, fmt.Errorf("partition.unit_weight must not be negative, got %d", c.Partition.UnitWeight))
	}
	if c.Executor.AttemptTimeout < 0 || c.Executor.RetryBaseDelay < 0 {
		errs = append(errs, errors.New("executor durations must not be negative"))
	}
	switch c.ObjectStore.Provider {
	case objstore.ProviderAWS, objstore.ProviderMinIO:
	default:
		errs = append(errs, fmt.Errorf("object_store.provider must be %q or %q, got %q",
			objstore.ProviderAWS, objstore.ProviderMinIO, c.ObjectStore.Provider))
	}
	return errors.Join(errs...)
}

// bindValues walks the struct and registers every 'mapstructure' key with its
// 'default' tag so AutomaticEnv can resolve it.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
