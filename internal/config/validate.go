package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrNoWatchRoots indicates no directories were configured to index.
	ErrNoWatchRoots = errors.New("at least one watch root is required")

	// ErrInvalidDimensions indicates an invalid embedding dimension.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidBatchSize indicates an invalid embedding batch size.
	ErrInvalidBatchSize = errors.New("invalid embedding batch size")

	// ErrEmptyModelTag indicates a missing embedding model tag.
	ErrEmptyModelTag = errors.New("empty embedding model_tag")

	// ErrInvalidMaxFileSize indicates an invalid max_file_size_bytes.
	ErrInvalidMaxFileSize = errors.New("invalid max_file_size_bytes")

	// ErrWarnExceedsMax indicates warn_file_size_bytes above max_file_size_bytes.
	ErrWarnExceedsMax = errors.New("warn_file_size_bytes exceeds max_file_size_bytes")

	// ErrInvalidBinaryThreshold indicates a binary_threshold outside [0,1].
	ErrInvalidBinaryThreshold = errors.New("invalid binary_threshold")

	// ErrInvalidSymlinkDepth indicates a negative max_symlink_depth.
	ErrInvalidSymlinkDepth = errors.New("invalid max_symlink_depth")

	// ErrInvalidDebounce indicates a negative debounce_ms.
	ErrInvalidDebounce = errors.New("invalid debounce_ms")

	// ErrInvalidWorkerCount indicates a non-positive worker_count.
	ErrInvalidWorkerCount = errors.New("invalid worker_count")

	// ErrInvalidChunkTokens indicates a non-positive chunking max_tokens.
	ErrInvalidChunkTokens = errors.New("invalid chunking max_tokens")

	// ErrInvalidOverlap indicates an out-of-range overlap_percent.
	ErrInvalidOverlap = errors.New("invalid chunking overlap_percent")

	// ErrNoProvidersEnabled indicates every search provider is disabled.
	ErrNoProvidersEnabled = errors.New("at least one provider must be enabled")

	// ErrInvalidWeight indicates a negative provider weight.
	ErrInvalidWeight = errors.New("invalid provider weight")

	// ErrInvalidDefaultK indicates a non-positive query default_k.
	ErrInvalidDefaultK = errors.New("invalid query default_k")

	// ErrInvalidMMRLambda indicates an mmr_lambda outside [0,1].
	ErrInvalidMMRLambda = errors.New("invalid query mmr_lambda")

	// ErrInvalidBudget indicates default_max_tokens not greater than reserve_for_prompt.
	ErrInvalidBudget = errors.New("invalid budget: default_max_tokens must exceed reserve_for_prompt")

	// ErrEmptyDBPath indicates a missing storage db_path.
	ErrEmptyDBPath = errors.New("empty storage db_path")

	// ErrInvalidGlobPattern indicates a glob pattern that fails to compile.
	ErrInvalidGlobPattern = errors.New("invalid glob pattern")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateWatchRoots(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateSizes(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateEmbedding(&cfg.Embedding); err != nil {
		errs = append(errs, err)
	}
	if err := validateChunking(&cfg.Chunking); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviders(&cfg.Providers); err != nil {
		errs = append(errs, err)
	}
	if err := validateQuery(&cfg.Query); err != nil {
		errs = append(errs, err)
	}
	if err := validateBudget(&cfg.Budget); err != nil {
		errs = append(errs, err)
	}
	if err := validateStorage(&cfg.Storage); err != nil {
		errs = append(errs, err)
	}
	if err := validateGlobs(cfg); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateWatchRoots(cfg *Config) error {
	if len(cfg.WatchRoots) == 0 {
		return ErrNoWatchRoots
	}
	return nil
}

func validateSizes(cfg *Config) error {
	var errs []error

	if cfg.MaxFileSizeBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidMaxFileSize, cfg.MaxFileSizeBytes))
	}
	if cfg.WarnFileSizeBytes > cfg.MaxFileSizeBytes {
		errs = append(errs, fmt.Errorf("%w: warn=%d max=%d", ErrWarnExceedsMax, cfg.WarnFileSizeBytes, cfg.MaxFileSizeBytes))
	}
	if cfg.BinaryThreshold < 0 || cfg.BinaryThreshold > 1 {
		errs = append(errs, fmt.Errorf("%w: got %.2f", ErrInvalidBinaryThreshold, cfg.BinaryThreshold))
	}
	if cfg.MaxSymlinkDepth < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidSymlinkDepth, cfg.MaxSymlinkDepth))
	}
	if cfg.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidDebounce, cfg.DebounceMs))
	}
	if cfg.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, cfg.WorkerCount))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateEmbedding(cfg *EmbeddingConfig) error {
	var errs []error

	if cfg.Dim <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidDimensions, cfg.Dim))
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidBatchSize, cfg.BatchSize))
	}
	if strings.TrimSpace(cfg.ModelTag) == "" {
		errs = append(errs, fmt.Errorf("%w: model_tag is required", ErrEmptyModelTag))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateChunking(cfg *ChunkingConfig) error {
	var errs []error

	checkOne := func(lang string, lc LanguageChunkingConfig) {
		if lc.MaxTokens <= 0 {
			errs = append(errs, fmt.Errorf("%w: language %q, got %d", ErrInvalidChunkTokens, lang, lc.MaxTokens))
		}
		if lc.OverlapPercent < 0 || lc.OverlapPercent >= 100 {
			errs = append(errs, fmt.Errorf("%w: language %q, got %d", ErrInvalidOverlap, lang, lc.OverlapPercent))
		}
	}
	checkOne("default", cfg.Default)
	for lang, lc := range cfg.PerLanguage {
		checkOne(lang, lc)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateProviders(cfg *ProvidersConfig) error {
	var errs []error

	if !cfg.Semantic.Enabled && !cfg.Symbol.Enabled && !cfg.FullText.Enabled {
		errs = append(errs, ErrNoProvidersEnabled)
	}
	named := map[string]ProviderConfig{"semantic": cfg.Semantic, "symbol": cfg.Symbol, "full_text": cfg.FullText}
	for name, pc := range named {
		if pc.Weight < 0 {
			errs = append(errs, fmt.Errorf("%w: provider %q, got %.2f", ErrInvalidWeight, name, pc.Weight))
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateQuery(cfg *QueryConfig) error {
	var errs []error

	if cfg.DefaultK <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidDefaultK, cfg.DefaultK))
	}
	if cfg.MMRLambda < 0 || cfg.MMRLambda > 1 {
		errs = append(errs, fmt.Errorf("%w: got %.2f", ErrInvalidMMRLambda, cfg.MMRLambda))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateBudget(cfg *BudgetConfig) error {
	if cfg.DefaultMaxTokens <= cfg.ReserveForPrompt {
		return fmt.Errorf("%w: default=%d reserve=%d", ErrInvalidBudget, cfg.DefaultMaxTokens, cfg.ReserveForPrompt)
	}
	return nil
}

func validateStorage(cfg *StorageConfig) error {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return ErrEmptyDBPath
	}
	return nil
}

func validateGlobs(cfg *Config) error {
	var errs []error
	checkPattern := func(p string) {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w %q: %v", ErrInvalidGlobPattern, p, err))
		}
	}
	for _, p := range cfg.IgnorePatterns {
		checkPattern(p)
	}
	for _, p := range cfg.SizeExceptions {
		checkPattern(p)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
