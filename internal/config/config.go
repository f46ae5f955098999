// Package config loads the settings of the market service from a .env file,
// the environment and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

const (
	StoreMemory   = "memory"
	StoreKV       = "kv"
	StorePostgres = "postgres"
)

type Config struct {
	ListenAddr  string `mapstructure:"listen-addr"`
	MetricsAddr string `mapstructure:"metrics-addr"`
	JWTSecret   string `mapstructure:"jwt-secret"`

	LogFormat string `mapstructure:"log-format"`
	LogLevel  string `mapstructure:"log-level"`

	DBUser     string `mapstructure:"db-user"`
	DBPassword string `mapstructure:"db-password"`
	DBHost     string `mapstructure:"db-host"`
	DBPort     string `mapstructure:"db-port"`
	DBName     string `mapstructure:"db-name"`

	TBClusterID uint64 `mapstructure:"tb-cluster-id"`
	// Comma separated replica addresses.
	TBAddresses string `mapstructure:"tb-address"`

	StoreBackend string `mapstructure:"store-backend"`
	KVDir        string `mapstructure:"kv-dir"`
	KVBackend    string `mapstructure:"kv-backend"`

	InstanceIndex    uint64 `mapstructure:"instance-index"`
	InstanceSubindex uint64 `mapstructure:"instance-subindex"`
	InstanceOwner    string `mapstructure:"instance-owner"`

	GatewayURL string `mapstructure:"cis2-gateway-url"`

	SettleInterval time.Duration `mapstructure:"settle-interval"`
	SettleBatch    int           `mapstructure:"settle-batch"`
	ReserveTimeout time.Duration `mapstructure:"reserve-timeout"`
}

// env names the environment variable of every key.
var env = map[string]string{
	"listen-addr":       "HTTP_ADDR",
	"metrics-addr":      "METRICS_ADDR",
	"jwt-secret":        "JWT_SECRET",
	"log-format":        "LOG_FORMAT",
	"log-level":         "LOG_LEVEL",
	"db-user":           "DB_USER",
	"db-password":       "DB_PASSWORD",
	"db-host":           "DB_HOST",
	"db-port":           "DB_PORT",
	"db-name":           "DB_NAME",
	"tb-cluster-id":     "TB_CLUSTER_ID",
	"tb-address":        "TB_ADDRESS",
	"store-backend":     "STORE_BACKEND",
	"kv-dir":            "KV_DIR",
	"kv-backend":        "KV_BACKEND",
	"instance-index":    "INSTANCE_INDEX",
	"instance-subindex": "INSTANCE_SUBINDEX",
	"instance-owner":    "INSTANCE_OWNER",
	"cis2-gateway-url":  "CIS2_GATEWAY_URL",
	"settle-interval":   "SETTLE_INTERVAL",
	"settle-batch":      "SETTLE_BATCH",
	"reserve-timeout":   "RESERVE_TIMEOUT",
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		MetricsAddr:    ":9090",
		LogFormat:      log.LogFormatPlain,
		LogLevel:       log.LogLevelInfo,
		DBHost:         "localhost",
		DBPort:         "5432",
		TBAddresses:    "3001",
		StoreBackend:   StoreMemory,
		KVDir:          "data",
		KVBackend:      "goleveldb",
		SettleInterval: 30 * time.Second,
		SettleBatch:    100,
		ReserveTimeout: 5 * time.Minute,
	}
}

// AddFlags registers a flag for every key on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("listen-addr", d.ListenAddr, "HTTP listen address")
	fs.String("metrics-addr", d.MetricsAddr, "prometheus listen address, empty to disable")
	fs.String("log-format", d.LogFormat, "log format (plain|text|json)")
	fs.String("log-level", d.LogLevel, "log level (debug|info|error)")
	fs.String("store-backend", d.StoreBackend, "listing store (memory|kv|postgres)")
	fs.String("kv-dir", d.KVDir, "directory of the kv listing store")
	fs.String("kv-backend", d.KVBackend, "tm-db backend of the kv listing store")
	fs.String("cis2-gateway-url", d.GatewayURL, "base URL of the CIS-2 gateway")
	fs.Duration("settle-interval", d.SettleInterval, "interval between settlement passes")
	fs.Int("settle-batch", d.SettleBatch, "settlement intents read per journal page")
	fs.Duration("reserve-timeout", d.ReserveTimeout, "age after which a reserved intent is released")
}

// Load reads the optional .env files, then the environment and fs. fs may be
// nil.
func Load(fs *pflag.FlagSet, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("load env: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	d := DefaultConfig()
	defaults := map[string]interface{}{
		"listen-addr":     d.ListenAddr,
		"metrics-addr":    d.MetricsAddr,
		"log-format":      d.LogFormat,
		"log-level":       d.LogLevel,
		"db-host":         d.DBHost,
		"db-port":         d.DBPort,
		"tb-address":      d.TBAddresses,
		"store-backend":   d.StoreBackend,
		"kv-dir":          d.KVDir,
		"kv-backend":      d.KVBackend,
		"settle-interval": d.SettleInterval,
		"settle-batch":    d.SettleBatch,
		"reserve-timeout": d.ReserveTimeout,
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, err
		}
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}
	return conf, conf.ValidateBasic()
}

func (c *Config) ValidateBasic() error {
	switch c.StoreBackend {
	case StoreMemory, StoreKV, StorePostgres:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.InstanceOwner != "" {
		if _, err := model.ParseAccountAddress(c.InstanceOwner); err != nil {
			return fmt.Errorf("instance owner: %w", err)
		}
	}
	if c.SettleBatch <= 0 {
		return errors.New("settle batch must be positive")
	}
	return nil
}

// DSN is the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

func (c *Config) TBReplicas() []string {
	var out []string
	for _, a := range strings.Split(c.TBAddresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *Config) Instance() model.ContractAddress {
	return model.ContractAddress{Index: c.InstanceIndex, Subindex: c.InstanceSubindex}
}

// Owner returns the instance owner, the zero address when none is set.
func (c *Config) Owner() model.AccountAddress {
	owner, _ := model.ParseAccountAddress(c.InstanceOwner)
	return owner
}
