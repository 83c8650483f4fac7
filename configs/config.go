package config

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
)

const (
	envConfigPath    = "CONFIG_PATH"
	envConfigEnabled = "CONFIG_ENV_ENABLED"
	defaultPath      = "config.yml"
)

type RetryPolicy struct {
	NumRetries    int           `yaml:"numRetries" mapstructure:"numRetries"`
	MinRetryDelay time.Duration `yaml:"minRetryDelay" mapstructure:"minRetryDelay"`
	MaxRetryDelay time.Duration `yaml:"maxRetryDelay" mapstructure:"maxRetryDelay"`
}

type SSL struct {
	Enable             bool   `yaml:"enable" mapstructure:"enable"`
	CertPath           string `yaml:"certPath" mapstructure:"certPath"`
	KeyPath            string `yaml:"keyPath" mapstructure:"keyPath"`
	CaPath             string `yaml:"caPath" mapstructure:"caPath"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify" mapstructure:"insecureSkipVerify"`
}

type Cassandra struct {
	Hosts             []string      `yaml:"hosts" mapstructure:"hosts" validate:"required,min=1,dive,required"`
	Username          string        `yaml:"username" mapstructure:"username"`
	Password          string        `yaml:"password" mapstructure:"password"`
	Keyspace          string        `yaml:"keyspace" mapstructure:"keyspace" validate:"required"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Consistency       string        `yaml:"consistency" mapstructure:"consistency"`
	SerialConsistency string        `yaml:"serialConsistency" mapstructure:"serialConsistency" validate:"omitempty,oneof=SERIAL LOCAL_SERIAL"`
	NumConns          int           `yaml:"numConns" mapstructure:"numConns"`
	ConnectTimeout    time.Duration `yaml:"connectTimeout" mapstructure:"connectTimeout"`
	KeepAlive         time.Duration `yaml:"keepAlive" mapstructure:"keepAlive"`
	MaxPreparedStmts  int           `yaml:"maxPreparedStmts" mapstructure:"maxPreparedStmts"`
	MaxRoutingKeyInfo int           `yaml:"maxRoutingKeyInfo" mapstructure:"maxRoutingKeyInfo"`
	PageSize          int           `yaml:"pageSize" mapstructure:"pageSize"`
	RetryPolicy       RetryPolicy   `yaml:"retryPolicy" mapstructure:"retryPolicy"`
	Compressor        string        `yaml:"compressor" mapstructure:"compressor" validate:"omitempty,oneof=snappy lz4"`
	SSL               SSL           `yaml:"ssl" mapstructure:"ssl"`
}

// Flush configures the unit-of-work queue that executes pending writes.
type Flush struct {
	BatchSizeLimit      int           `yaml:"batchSizeLimit" mapstructure:"batchSizeLimit"`
	BatchTickerDuration time.Duration `yaml:"batchTickerDuration" mapstructure:"batchTickerDuration"`
	WorkerCount         int           `yaml:"workerCount" mapstructure:"workerCount"`
	UseBatch            bool          `yaml:"useBatch" mapstructure:"useBatch"`
	BatchType           string        `yaml:"batchType" mapstructure:"batchType" validate:"oneof=logged unlogged counter"`
	MaxBatchSize        int           `yaml:"maxBatchSize" mapstructure:"maxBatchSize"`
	RetryPolicy         RetryPolicy   `yaml:"retryPolicy" mapstructure:"retryPolicy"`
}

// EntityMapping describes how a persistent type is stored in a Cassandra table.
type EntityMapping struct {
	Name             string            `yaml:"name" mapstructure:"name" validate:"required"`
	Keyspace         string            `yaml:"keyspace" mapstructure:"keyspace"`
	Table            string            `yaml:"table" mapstructure:"table" validate:"required"`
	IdentityStrategy string            `yaml:"identityStrategy" mapstructure:"identityStrategy" validate:"omitempty,oneof=assigned uuid timeuuid"`
	PartitionKeys    []string          `yaml:"partitionKeys" mapstructure:"partitionKeys" validate:"required,min=1,dive,required"`
	ClusteringKeys   []string          `yaml:"clusteringKeys" mapstructure:"clusteringKeys"`
	Columns          []string          `yaml:"columns" mapstructure:"columns"`
	FieldMappings    map[string]string `yaml:"fieldMappings" mapstructure:"fieldMappings"`
	TTL              time.Duration     `yaml:"ttl" mapstructure:"ttl"`
}

type Config struct {
	Cassandra Cassandra       `yaml:"cassandra" mapstructure:"cassandra"`
	Flush     Flush           `yaml:"flush" mapstructure:"flush"`
	Entities  []EntityMapping `yaml:"entities" mapstructure:"entities" validate:"dive"`
	AppPort   string          `yaml:"appPort" mapstructure:"appPort"`
}

var validConsistencies = map[string]bool{
	"ANY":          true,
	"ONE":          true,
	"TWO":          true,
	"THREE":        true,
	"QUORUM":       true,
	"ALL":          true,
	"LOCAL_QUORUM": true,
	"EACH_QUORUM":  true,
	"LOCAL_ONE":    true,
}

func (c *Cassandra) setDefaults() {
	consistency := strings.TrimSpace(strings.ToUpper(c.Consistency))
	if consistency == "" || !validConsistencies[consistency] {
		c.Consistency = "QUORUM"
	} else {
		c.Consistency = consistency
	}
	c.SerialConsistency = strings.TrimSpace(strings.ToUpper(c.SerialConsistency))

	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.NumConns <= 0 {
		c.NumConns = 2
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.MaxPreparedStmts <= 0 {
		c.MaxPreparedStmts = 1000
	}
	if c.PageSize <= 0 {
		c.PageSize = 5000
	}
	if c.RetryPolicy.NumRetries <= 0 {
		c.RetryPolicy.NumRetries = 3
	}
	c.RetryPolicy.setDelayDefaults()
}

func (r *RetryPolicy) setDelayDefaults() {
	if r.MinRetryDelay <= 0 {
		r.MinRetryDelay = 100 * time.Millisecond
	}
	if r.MaxRetryDelay <= 0 {
		r.MaxRetryDelay = 1 * time.Second
	}
}

// setDefaults leaves RetryPolicy.NumRetries at zero when unset: the flush
// queue does not retry unless asked to.
func (f *Flush) setDefaults() {
	if f.BatchSizeLimit <= 0 {
		f.BatchSizeLimit = 1000
	}
	if f.BatchTickerDuration <= 0 {
		f.BatchTickerDuration = 1 * time.Second
	}
	if f.WorkerCount <= 0 {
		f.WorkerCount = 1
	}
	f.BatchType = strings.TrimSpace(strings.ToLower(f.BatchType))
	if f.BatchType == "" {
		f.BatchType = "logged"
	}
	if f.MaxBatchSize <= 0 {
		f.MaxBatchSize = 100
	}
	if f.RetryPolicy.NumRetries < 0 {
		f.RetryPolicy.NumRetries = 0
	}
	f.RetryPolicy.setDelayDefaults()
}

func (c *Config) ApplyDefaults() {
	c.Cassandra.setDefaults()
	c.Flush.setDefaults()
	if c.AppPort == "" {
		c.AppPort = ":8080"
	}
	for i := range c.Entities {
		if c.Entities[i].IdentityStrategy == "" {
			c.Entities[i].IdentityStrategy = "assigned"
		}
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// LoadAppConfig reads the config file at path with viper. A missing file is
// not an error. When CONFIG_ENV_ENABLED is true, environment variables such
// as CASSANDRA_CONSISTENCY or FLUSH_USEBATCH override file values.
func LoadAppConfig(path string) (*Config, error) {
	var cfg Config

	v := viper.New()
	v.SetConfigFile(path)
	err := v.ReadInConfig()
	switch {
	case err == nil:
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, errors.Wrapf(err, "can't decode config file %q", path)
		}
	case errors.Is(err, fs.ErrNotExist):
		klog.V(2).InfoS("Config file not found, using defaults", "path", path)
	default:
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrapf(err, "can't read config file %q", path)
		}
	}

	if strings.EqualFold(os.Getenv(envConfigEnabled), "true") {
		if err := envconfig.Process("", &cfg); err != nil {
			return nil, errors.Wrap(err, "can't process environment overrides")
		}
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

func NewAppConfig() Config {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = defaultPath
	}
	cfg, err := LoadAppConfig(path)
	if err != nil {
		klog.Fatalf("Failed to load config: %v", err)
	}
	return *cfg
}
