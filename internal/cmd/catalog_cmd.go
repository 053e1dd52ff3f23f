package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aryasuneesh/feature-discovery/internal/engine/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the feature catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a catalog file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: ok (%d features)\n", args[0], cat.Len())
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list <file>",
	Short: "List the features in a catalog file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}
		for _, f := range cat.ListFeatures() {
			line := fmt.Sprintf("%-24s %-12s tier %d", f.ID, f.Category, f.Complexity)
			if len(f.Tags) > 0 {
				line += "  [" + strings.Join(f.Tags, ", ") + "]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogListCmd)
}
