// Resource configuration, loaded from a YAML file living next to the
// resource data.
package resource

import (
	"fmt"

	"github.com/sirixdb/sirix-go/internal/revision"
	"github.com/spf13/viper"
)

type Config struct {
	Resource struct {
		Dir                string `mapstructure:"dir"`
		Policy             string `mapstructure:"policy"`
		RevisionsToRestore int    `mapstructure:"revisions_to_restore"`
		StoreDeweyIDs      bool   `mapstructure:"store_dewey_ids"`
		Compression        bool   `mapstructure:"compression"`
	} `mapstructure:"resource"`
	Indexes struct {
		Path bool `mapstructure:"path"`
		CAS  bool `mapstructure:"cas"`
	} `mapstructure:"indexes"`
	Cache struct {
		RecordSlots      int `mapstructure:"record_slots"`
		IndexSlots       int `mapstructure:"index_slots"`
		RecordTTLSeconds int `mapstructure:"record_ttl_seconds"`
	} `mapstructure:"cache"`
}

// Default returns the configuration of a resource without a config file.
func Default(dir string) Config {
	var cfg Config
	cfg.Resource.Dir = dir
	cfg.Resource.Policy = revision.SlidingSnapshot.String()
	cfg.Resource.RevisionsToRestore = 3
	cfg.Cache.RecordSlots = 1000
	cfg.Cache.IndexSlots = 20
	cfg.Cache.RecordTTLSeconds = 5000
	return cfg
}

// Load reads a config file and fills unset values with defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	def := Default(cfg.Resource.Dir)
	if cfg.Resource.Policy == "" {
		cfg.Resource.Policy = def.Resource.Policy
	}
	if cfg.Resource.RevisionsToRestore <= 0 {
		cfg.Resource.RevisionsToRestore = def.Resource.RevisionsToRestore
	}
	if cfg.Cache.RecordSlots <= 0 {
		cfg.Cache.RecordSlots = def.Cache.RecordSlots
	}
	if cfg.Cache.IndexSlots <= 0 {
		cfg.Cache.IndexSlots = def.Cache.IndexSlots
	}
	if cfg.Cache.RecordTTLSeconds <= 0 {
		cfg.Cache.RecordTTLSeconds = def.Cache.RecordTTLSeconds
	}
	return cfg, nil
}

// Policy parses the configured versioning policy.
func (c Config) Policy() (revision.Policy, error) {
	return revision.ParsePolicy(c.Resource.Policy)
}
