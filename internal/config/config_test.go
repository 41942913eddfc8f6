package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Config System:
// - Default() returns valid configuration with all expected defaults
// - LoadConfig() uses defaults when no config file exists
// - LoadConfig() loads from .agentfusion/config.yml when present
// - LoadConfig() falls back to rootDir as the sole watch root
// - Environment variables override config file and default values
// - Validate() accepts the default configuration
// - Validate() rejects an empty watch roots list
// - Validate() rejects warn_file_size_bytes above max_file_size_bytes
// - Validate() rejects an out-of-range binary_threshold
// - Validate() rejects every provider disabled
// - Validate() rejects an out-of-range mmr_lambda
// - Validate() rejects default_max_tokens not exceeding reserve_for_prompt
// - Validate() rejects an invalid ignore pattern glob
// - Validate() returns multiple errors for multiple invalid fields
// - ChunkingConfig.ForLanguage() falls back to Default for unknown languages

func TestDefault_ReturnsValidConfiguration(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, "hash-embed-v1", cfg.Embedding.ModelTag)
	assert.Equal(t, 384, cfg.Embedding.Dim)
	assert.True(t, cfg.Embedding.Normalize)
	assert.Empty(t, cfg.Embedding.Endpoint)

	assert.Equal(t, 500, cfg.Chunking.Default.MaxTokens)
	assert.Equal(t, 800, cfg.Chunking.PerLanguage["markdown"].MaxTokens)

	assert.Equal(t, 0.6, cfg.Providers.Semantic.Weight)
	assert.Equal(t, 0.15, cfg.Providers.Symbol.Weight)
	assert.Equal(t, 0.25, cfg.Providers.FullText.Weight)

	assert.Equal(t, 10, cfg.Query.DefaultK)
	assert.Equal(t, 0.5, cfg.Query.MMRLambda)

	assert.Equal(t, 8000, cfg.Budget.DefaultMaxTokens)
	assert.Equal(t, 1000, cfg.Budget.ReserveForPrompt)

	cfg.WatchRoots = []string{"."}
	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig_UsesDefaultsWhenNoConfigFile(t *testing.T) {
	tempDir := t.TempDir()

	cfg, err := NewLoader(tempDir).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	expected := Default()
	assert.Equal(t, expected.Embedding.ModelTag, cfg.Embedding.ModelTag)
	assert.Equal(t, expected.Embedding.Dim, cfg.Embedding.Dim)
	assert.Equal(t, []string{tempDir}, cfg.WatchRoots)
}

func TestLoadConfig_LoadsFromConfigYml(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, ".agentfusion")
	require.NoError(t, os.MkdirAll(configDir, 0755))

	yml := `
watch_roots:
  - src
embedding:
  dim: 768
query:
  default_k: 20
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yml"), []byte(yml), 0644))

	cfg, err := NewLoader(tempDir).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"src"}, cfg.WatchRoots)
	assert.Equal(t, 768, cfg.Embedding.Dim)
	assert.Equal(t, 20, cfg.Query.DefaultK)
	// Fields untouched by the file still fall back to defaults.
	assert.Equal(t, "hash-embed-v1", cfg.Embedding.ModelTag)
}

func TestLoadConfig_EnvironmentOverridesConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, ".agentfusion")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yml"), []byte("query:\n  default_k: 20\n"), 0644))

	t.Setenv("CONTEXTENGINE_QUERY_DEFAULT_K", "30")

	cfg, err := NewLoader(tempDir).Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Query.DefaultK)
}

func TestValidate_RejectsEmptyWatchRoots(t *testing.T) {
	cfg := Default()
	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrNoWatchRoots)
}

func TestValidate_RejectsWarnExceedingMax(t *testing.T) {
	cfg := Default()
	cfg.WatchRoots = []string{"."}
	cfg.WarnFileSizeBytes = cfg.MaxFileSizeBytes + 1

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrWarnExceedsMax)
}

func TestValidate_RejectsOutOfRangeBinaryThreshold(t *testing.T) {
	cfg := Default()
	cfg.WatchRoots = []string{"."}
	cfg.BinaryThreshold = 1.5

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrInvalidBinaryThreshold)
}

func TestValidate_RejectsAllProvidersDisabled(t *testing.T) {
	cfg := Default()
	cfg.WatchRoots = []string{"."}
	cfg.Providers = ProvidersConfig{}

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrNoProvidersEnabled)
}

func TestValidate_RejectsOutOfRangeMMRLambda(t *testing.T) {
	cfg := Default()
	cfg.WatchRoots = []string{"."}
	cfg.Query.MMRLambda = -0.1

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrInvalidMMRLambda)
}

func TestValidate_RejectsBudgetNotExceedingReserve(t *testing.T) {
	cfg := Default()
	cfg.WatchRoots = []string{"."}
	cfg.Budget.DefaultMaxTokens = cfg.Budget.ReserveForPrompt

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestValidate_RejectsInvalidGlobPattern(t *testing.T) {
	cfg := Default()
	cfg.WatchRoots = []string{"."}
	cfg.IgnorePatterns = []string{"["}

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrInvalidGlobPattern)
}

func TestValidate_ReturnsMultipleErrorsForMultipleInvalidFields(t *testing.T) {
	cfg := Default()
	cfg.WatchRoots = []string{"."}
	cfg.BinaryThreshold = 2
	cfg.Query.MMRLambda = 2

	err := Validate(cfg)
	require.Error(t, err)
	// Two separate validators failed, so the joined message (not the error
	// chain) is what carries both reasons.
	assert.Contains(t, err.Error(), ErrInvalidBinaryThreshold.Error())
	assert.Contains(t, err.Error(), ErrInvalidMMRLambda.Error())
}

func TestChunkingConfig_ForLanguageFallsBackToDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Chunking.Default, cfg.Chunking.ForLanguage("unknown-language"))
	assert.Equal(t, cfg.Chunking.PerLanguage["go"], cfg.Chunking.ForLanguage("go"))
}
