package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (CONTEXTENGINE_*)
// 2. Config file (.agentfusion/config.yml or .agentfusion/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".agentfusion")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("CONTEXTENGINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("watch_roots")
	v.BindEnv("debounce_ms")
	v.BindEnv("worker_count")
	v.BindEnv("embedding.model_tag")
	v.BindEnv("embedding.dim")
	v.BindEnv("embedding.endpoint")
	v.BindEnv("embedding.batch_size")
	v.BindEnv("storage.db_path")
	v.BindEnv("query.default_k")
	v.BindEnv("query.mmr_lambda")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.WatchRoots) == 0 {
		cfg.WatchRoots = []string{l.rootDir}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("allowed_extensions", d.AllowedExtensions)
	v.SetDefault("blocked_extensions", d.BlockedExtensions)
	v.SetDefault("ignore_files", d.IgnoreFiles)
	v.SetDefault("ignore_patterns", d.IgnorePatterns)
	v.SetDefault("max_file_size_bytes", d.MaxFileSizeBytes)
	v.SetDefault("warn_file_size_bytes", d.WarnFileSizeBytes)
	v.SetDefault("binary_threshold", d.BinaryThreshold)
	v.SetDefault("follow_symlinks", d.FollowSymlinks)
	v.SetDefault("max_symlink_depth", d.MaxSymlinkDepth)
	v.SetDefault("debounce_ms", d.DebounceMs)
	v.SetDefault("worker_count", d.WorkerCount)

	v.SetDefault("embedding.model_tag", d.Embedding.ModelTag)
	v.SetDefault("embedding.dim", d.Embedding.Dim)
	v.SetDefault("embedding.normalize", d.Embedding.Normalize)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)

	v.SetDefault("chunking.default.max_tokens", d.Chunking.Default.MaxTokens)
	v.SetDefault("chunking.default.overlap_percent", d.Chunking.Default.OverlapPercent)
	perLanguage := make(map[string]interface{}, len(d.Chunking.PerLanguage))
	for lang, lc := range d.Chunking.PerLanguage {
		perLanguage[lang] = map[string]interface{}{
			"max_tokens":      lc.MaxTokens,
			"overlap_percent": lc.OverlapPercent,
		}
	}
	v.SetDefault("chunking.per_language", perLanguage)

	v.SetDefault("providers.semantic.enabled", d.Providers.Semantic.Enabled)
	v.SetDefault("providers.semantic.weight", d.Providers.Semantic.Weight)
	v.SetDefault("providers.symbol.enabled", d.Providers.Symbol.Enabled)
	v.SetDefault("providers.symbol.weight", d.Providers.Symbol.Weight)
	v.SetDefault("providers.full_text.enabled", d.Providers.FullText.Enabled)
	v.SetDefault("providers.full_text.weight", d.Providers.FullText.Weight)

	v.SetDefault("query.default_k", d.Query.DefaultK)
	v.SetDefault("query.mmr_lambda", d.Query.MMRLambda)
	v.SetDefault("query.min_score_threshold", d.Query.MinScoreThreshold)
	v.SetDefault("query.rerank_enabled", d.Query.RerankEnabled)

	v.SetDefault("budget.default_max_tokens", d.Budget.DefaultMaxTokens)
	v.SetDefault("budget.reserve_for_prompt", d.Budget.ReserveForPrompt)

	v.SetDefault("storage.db_path", d.Storage.DBPath)
}

// LoadConfig is a convenience function that creates a loader and loads config
// using the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
