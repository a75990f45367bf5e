package cmd

import (
	"context"
	"strings"

	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "phyling",
	Short: "Species trees from marker genes",
	Long: `Phyling builds a species tree from a set of genome proteomes.

Each genome is searched against a catalog of marker gene profiles. Markers
found in enough genomes are aligned, optionally trimmed and turned into
gene trees, which are then summarized into one species tree (or the
alignments are concatenated and a single tree is inferred).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/phyling/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PHYLING")
	// Replace dots with underscores for nested keys in env vars
	// e.g., PHYLING_COVERAGE_MIN_FRACTION for coverage.min_fraction
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
