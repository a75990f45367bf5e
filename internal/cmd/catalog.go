package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the marker catalog",
}

var catalogShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "List the markers of a catalog",
	Long: `List the markers of a catalog with their model length and score cutoff.

Without a path, the configured catalog.path is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalogShow,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogShowCmd)
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	path := config.Get().Catalog.Path
	if len(args) > 0 {
		path = args[0]
	}

	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	name := cat.Name
	if cat.Version != "" {
		name += " " + cat.Version
	}
	fmt.Fprintf(out, "Catalog: %s (%d markers)\n", name, cat.Len())
	fmt.Fprintf(out, "Path:    %s\n\n", cat.Path)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKER\tACCESSION\tLENGTH\tCUTOFF")
	for _, id := range cat.IDs() {
		m, _ := cat.Marker(id)
		cutoff := "-"
		if m.Cutoff > 0 {
			cutoff = fmt.Sprintf("%g", m.Cutoff)
		}
		accession := m.Accession
		if accession == "" {
			accession = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", id, accession, m.Length, cutoff)
	}
	return tw.Flush()
}
