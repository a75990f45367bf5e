package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "coverage.min_fraction")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidSearchFormats returns the hit table formats the search adapter parses
func ValidSearchFormats() []string {
	return []string{"domtblout", "tsv"}
}

// ValidAlignMethods returns the supported alignment tools
func ValidAlignMethods() []string {
	return []string{"hmmalign", "muscle", "mafft"}
}

// ValidTrimMethods returns the supported trimming tools
func ValidTrimMethods() []string {
	return []string{"clipkit", "trimal"}
}

// ValidTreeMethods returns the supported gene-tree tools
func ValidTreeMethods() []string {
	return []string{"veryfasttree", "fasttree", "iqtree"}
}

// ValidConsensusMethods returns the supported summarization tools
func ValidConsensusMethods() []string {
	return []string{"astral"}
}

// ValidStrategies returns the supported species-tree strategies
func ValidStrategies() []string {
	return []string{StrategyConsensus, StrategyConcatenation}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSearch()...)
	errors = append(errors, c.validateCoverage()...)
	errors = append(errors, c.validateStages()...)
	errors = append(errors, c.validateConsensus()...)
	errors = append(errors, c.validateTools()...)
	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// oneOf returns a validation error when value is set and not in valid.
func oneOf(field, value string, valid []string) []ValidationError {
	if value == "" || slices.Contains(valid, value) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
	}}
}

// validateSearch validates the SearchConfig
func (c *Config) validateSearch() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Search.Tool) == "" {
		errors = append(errors, ValidationError{
			Field:   "search.tool",
			Value:   c.Search.Tool,
			Message: "cannot be empty",
		})
	}
	errors = append(errors, oneOf("search.format", c.Search.Format, ValidSearchFormats())...)

	if c.Search.EValue <= 0 {
		errors = append(errors, ValidationError{
			Field:   "search.evalue",
			Value:   c.Search.EValue,
			Message: "must be positive",
		})
	}

	return errors
}

// validateCoverage validates the CoverageConfig
func (c *Config) validateCoverage() []ValidationError {
	var errors []ValidationError

	if c.Coverage.MinFraction <= 0 || c.Coverage.MinFraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "coverage.min_fraction",
			Value:   c.Coverage.MinFraction,
			Message: "must be in (0, 1]",
		})
	}
	if c.Coverage.MinGenomesPerMarker < 0 {
		errors = append(errors, ValidationError{
			Field:   "coverage.min_genomes_per_marker",
			Value:   c.Coverage.MinGenomesPerMarker,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateStages validates the align, trim and tree sections
func (c *Config) validateStages() []ValidationError {
	var errors []ValidationError

	errors = append(errors, oneOf("align.method", c.Align.Method, ValidAlignMethods())...)
	errors = append(errors, oneOf("trim.method", c.Trim.Method, ValidTrimMethods())...)
	errors = append(errors, oneOf("tree.method", c.Tree.Method, ValidTreeMethods())...)

	if c.Trim.GapThreshold < 0 || c.Trim.GapThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "trim.gap_threshold",
			Value:   c.Trim.GapThreshold,
			Message: "must be between 0 and 1",
		})
	}

	return errors
}

// validateConsensus validates the ConsensusConfig
func (c *Config) validateConsensus() []ValidationError {
	var errors []ValidationError

	errors = append(errors, oneOf("consensus.strategy", c.Consensus.Strategy, ValidStrategies())...)
	errors = append(errors, oneOf("consensus.method", c.Consensus.Method, ValidConsensusMethods())...)

	if c.Consensus.MinTrees < 1 {
		errors = append(errors, ValidationError{
			Field:   "consensus.min_trees",
			Value:   c.Consensus.MinTrees,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateTools validates the ToolsConfig
func (c *Config) validateTools() []ValidationError {
	var errors []ValidationError

	if c.Tools.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "tools.timeout_minutes",
			Value:   c.Tools.TimeoutMinutes,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}

	names := make([]string, 0, len(c.Tools.Paths))
	for name := range c.Tools.Paths {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if strings.TrimSpace(c.Tools.Paths[name]) == "" {
			errors = append(errors, ValidationError{
				Field:   "tools.paths." + name,
				Value:   c.Tools.Paths[name],
				Message: "executable path cannot be empty",
			})
		}
	}

	return errors
}

// validateRun validates the RunConfig
func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	if c.Run.Workers < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.workers",
			Value:   c.Run.Workers,
			Message: "must be non-negative (0 uses all CPUs)",
		})
	}

	// Reasonable upper bound; each worker may spawn a multi-threaded tool
	const maxWorkers = 1024
	if c.Run.Workers > maxWorkers {
		errors = append(errors, ValidationError{
			Field:   "run.workers",
			Value:   c.Run.Workers,
			Message: fmt.Sprintf("exceeds maximum of %d", maxWorkers),
		})
	}

	if strings.TrimSpace(c.Run.OutputDir) == "" {
		errors = append(errors, ValidationError{
			Field:   "run.output_dir",
			Value:   c.Run.OutputDir,
			Message: "cannot be empty",
		})
	}
	if strings.ContainsRune(c.Run.WorkDir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "run.work_dir",
			Value:   c.Run.WorkDir,
			Message: "path contains invalid null character",
		})
	}

	if c.Run.MinGenomes < 1 {
		errors = append(errors, ValidationError{
			Field:   "run.min_genomes",
			Value:   c.Run.MinGenomes,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
