package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/memory"
)

// Config holds all mnemo configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Memory   MemoryConfig   `toml:"memory" mapstructure:"memory"`
	Recall   RecallConfig   `toml:"recall" mapstructure:"recall"`
	Snapshot SnapshotConfig `toml:"snapshot" mapstructure:"snapshot"`
	Journal  JournalConfig  `toml:"journal" mapstructure:"journal"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Bind        string   `toml:"bind" mapstructure:"bind"`
	Port        int      `toml:"port" mapstructure:"port"`
	CORSOrigins []string `toml:"cors_origins" mapstructure:"cors_origins"`
}

type MemoryConfig struct {
	Alpha             float64       `toml:"alpha" mapstructure:"alpha"`
	Beta              float64       `toml:"beta" mapstructure:"beta"`
	Gamma             float64       `toml:"gamma" mapstructure:"gamma"`
	EvictionThreshold float64       `toml:"eviction_threshold" mapstructure:"eviction_threshold"`
	Bias              string        `toml:"bias" mapstructure:"bias"`                     // "", "recent", "important"
	DecayInterval     time.Duration `toml:"decay_interval" mapstructure:"decay_interval"` // 0 disables the timer
}

type RecallConfig struct {
	Similarity      string        `toml:"similarity" mapstructure:"similarity"` // "keyword", "substring", "tfidf"
	Weights         []float64     `toml:"weights" mapstructure:"weights"`       // episodic, semantic, procedural
	RecencyHalfLife time.Duration `toml:"recency_half_life" mapstructure:"recency_half_life"`
	MinRelevance    float64       `toml:"min_relevance" mapstructure:"min_relevance"`
	Limit           int           `toml:"limit" mapstructure:"limit"`
}

type SnapshotConfig struct {
	Dir              string        `toml:"dir" mapstructure:"dir"`
	Keep             int           `toml:"keep" mapstructure:"keep"`
	AutosaveInterval time.Duration `toml:"autosave_interval" mapstructure:"autosave_interval"`
	Compress         bool          `toml:"compress" mapstructure:"compress"`
	Key              string        `toml:"key" mapstructure:"key"` // hex, enables sealed snapshots
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"` // "console", "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	p := memory.DefaultParams()
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Memory: MemoryConfig{
			Alpha:             p.Alpha,
			Beta:              p.Beta,
			Gamma:             p.Gamma,
			EvictionThreshold: p.EvictionThreshold,
			DecayInterval:     time.Hour,
		},
		Recall: RecallConfig{
			Similarity:      "keyword",
			Weights:         []float64{1, 1, 1},
			RecencyHalfLife: engine.DefaultRecencyHalfLife,
			MinRelevance:    engine.DefaultMinRelevance,
			Limit:           engine.DefaultLimit,
		},
		Snapshot: SnapshotConfig{
			Dir:              "", // resolved at runtime via snapshot.DefaultDir()
			Keep:             10,
			AutosaveInterval: 15 * time.Minute,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "", // resolved at runtime via store.DefaultDBPath()
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns the default config file path: ~/.mnemo/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".mnemo", "config.toml"), nil
}

// Load reads configuration from path (or the default path when empty),
// then applies MNEMO_* environment overrides such as MNEMO_MEMORY_GAMMA.
// A missing default file is not an error; a missing explicit one is.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigType("toml")
	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("memory.alpha", d.Memory.Alpha)
	v.SetDefault("memory.beta", d.Memory.Beta)
	v.SetDefault("memory.gamma", d.Memory.Gamma)
	v.SetDefault("memory.eviction_threshold", d.Memory.EvictionThreshold)
	v.SetDefault("memory.bias", d.Memory.Bias)
	v.SetDefault("memory.decay_interval", d.Memory.DecayInterval)

	v.SetDefault("recall.similarity", d.Recall.Similarity)
	v.SetDefault("recall.weights", d.Recall.Weights)
	v.SetDefault("recall.recency_half_life", d.Recall.RecencyHalfLife)
	v.SetDefault("recall.min_relevance", d.Recall.MinRelevance)
	v.SetDefault("recall.limit", d.Recall.Limit)

	v.SetDefault("snapshot.dir", d.Snapshot.Dir)
	v.SetDefault("snapshot.keep", d.Snapshot.Keep)
	v.SetDefault("snapshot.autosave_interval", d.Snapshot.AutosaveInterval)
	v.SetDefault("snapshot.compress", d.Snapshot.Compress)
	v.SetDefault("snapshot.key", d.Snapshot.Key)

	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set. A missing
// file is ignored.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks every section for values the core would reject.
func (c *Config) Validate() error {
	if _, err := c.Params(); err != nil {
		return err
	}
	if _, err := c.Weights(); err != nil {
		return err
	}
	switch c.Recall.Similarity {
	case "keyword", "substring", "tfidf":
	default:
		return fmt.Errorf("%w: recall.similarity %q: want keyword, substring or tfidf", memory.ErrInvalidInput, c.Recall.Similarity)
	}
	if c.Recall.MinRelevance < 0 || c.Recall.MinRelevance > 1 {
		return fmt.Errorf("%w: recall.min_relevance must be in [0,1], got %v", memory.ErrInvalidInput, c.Recall.MinRelevance)
	}
	if c.Recall.RecencyHalfLife < 0 {
		return fmt.Errorf("%w: recall.recency_half_life must not be negative", memory.ErrInvalidInput)
	}
	if c.Snapshot.Keep < 0 {
		return fmt.Errorf("%w: snapshot.keep must not be negative", memory.ErrInvalidInput)
	}
	if _, err := c.SnapshotKey(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", memory.ErrInvalidInput, c.Server.Port)
	}
	return nil
}

// Params returns the decay parameters with the configured bias applied.
func (c *Config) Params() (memory.Params, error) {
	p := memory.Params{
		Alpha:             c.Memory.Alpha,
		Beta:              c.Memory.Beta,
		Gamma:             c.Memory.Gamma,
		EvictionThreshold: c.Memory.EvictionThreshold,
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p.WithBias(memory.Bias(c.Memory.Bias))
}

// Weights returns the recall channel weights.
func (c *Config) Weights() (engine.Weights, error) {
	var w engine.Weights
	switch len(c.Recall.Weights) {
	case 0:
	case 1:
		// single channel
		w = engine.Weights{c.Recall.Weights[0], c.Recall.Weights[0], c.Recall.Weights[0]}
	case 3:
		copy(w[:], c.Recall.Weights)
	default:
		return w, fmt.Errorf("%w: recall.weights wants 1 or 3 values, got %d", memory.ErrInvalidInput, len(c.Recall.Weights))
	}
	return w, w.Validate()
}

// SnapshotKey decodes the sealed snapshot key. It returns nil when no key is
// configured.
func (c *Config) SnapshotKey() ([]byte, error) {
	if c.Snapshot.Key == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.TrimSpace(c.Snapshot.Key))
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot.key is not hex: %v", memory.ErrInvalidInput, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: snapshot.key must be 32 bytes, got %d", memory.ErrInvalidInput, len(key))
	}
	return key, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
