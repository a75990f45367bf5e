package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify phyling configuration",
	Long: `View or modify phyling configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  phyling config set catalog.path ~/markers/fungi_odb10
  phyling config set coverage.min_fraction 0.8
  phyling config set consensus.strategy concatenation

Run 'phyling config show' to list every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/phyling/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n\n")
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	if err != nil {
		return err
	}

	if _, err := config.Load(); err != nil {
		fmt.Fprintf(out, "\nInvalid configuration:\n%v\n", err)
	}
	return nil
}

// settableKeys maps every key accepted by 'config set' to its value type.
var settableKeys = map[string]string{
	"catalog.path":                    "string",
	"search.tool":                     "string",
	"search.format":                   "string",
	"search.evalue":                   "float",
	"coverage.min_fraction":           "float",
	"coverage.min_genomes_per_marker": "int",
	"align.method":                    "string",
	"trim.enabled":                    "bool",
	"trim.method":                     "string",
	"trim.gap_threshold":              "float",
	"tree.method":                     "string",
	"consensus.strategy":              "string",
	"consensus.method":                "string",
	"consensus.min_trees":             "int",
	"tools.timeout_minutes":           "int",
	"run.workers":                     "int",
	"run.output_dir":                  "string",
	"run.work_dir":                    "string",
	"run.min_genomes":                 "int",
	"cache.enabled":                   "bool",
	"logging.enabled":                 "bool",
	"logging.level":                   "string",
	"logging.max_size_mb":             "int",
	"logging.max_backups":             "int",
}

// parseSetting converts value to the type of key.
func parseSetting(key, value string) (any, error) {
	keyType, ok := settableKeys[key]
	if !ok {
		if strings.HasPrefix(key, "tools.paths.") && len(key) > len("tools.paths.") {
			return value, nil
		}
		return nil, fmt.Errorf("unknown configuration key: %s\nValid keys: %s, tools.paths.<tool>",
			key, strings.Join(settableKeyNames(), ", "))
	}

	switch keyType {
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected number", key)
		}
		return f, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	typed, err := parseSetting(key, value)
	if err != nil {
		return err
	}

	// Validate the whole configuration with the new value applied
	previous := viper.Get(key)
	viper.Set(key, typed)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typed)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

// defaultConfigContent is the commented config file written by 'config init'.
const defaultConfigContent = `# phyling configuration

# Marker catalog: a directory of per-marker .hmm profiles (optionally with
# catalog.yaml and scores_cutoff) or a single combined .hmm file
catalog:
  path: ""

# Profile search, run once per genome
search:
  tool: hmmsearch
  # Hit table format: domtblout or tsv
  format: domtblout
  evalue: 1e-10

# Marker retention
coverage:
  # Fraction of searched genomes a marker must be found in (inclusive)
  min_fraction: 0.5
  # Absolute floor on genomes per retained marker
  min_genomes_per_marker: 3

# Per-marker pipeline
align:
  # Options: hmmalign, muscle, mafft
  method: hmmalign
trim:
  enabled: true
  # Options: clipkit, trimal
  method: clipkit
  gap_threshold: 0.9
tree:
  # Options: veryfasttree, fasttree, iqtree
  method: veryfasttree

# Species tree
consensus:
  # Options: consensus, concatenation
  strategy: consensus
  method: astral
  min_trees: 1

# External tools
tools:
  # Executable overrides, e.g. astral: /opt/aster/bin/astral
  paths: {}
  # Per-invocation timeout, 0 disables it
  timeout_minutes: 30

run:
  # 0 uses all CPUs
  workers: 0
  output_dir: phyling_out
  # Defaults to <output_dir>/work
  work_dir: ""
  min_genomes: 3

cache:
  # Reuse intermediate files whose inputs and settings are unchanged
  enabled: true

logging:
  enabled: true
  # Options: debug, info, warn, error
  level: info
  max_size_mb: 10
  max_backups: 3
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'phyling config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to set the marker catalog and tool preferences.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: PHYLING_* (e.g., PHYLING_COVERAGE_MIN_FRACTION)")
	return nil
}

// settableKeyNames returns the keys accepted by 'config set' in order.
func settableKeyNames() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
