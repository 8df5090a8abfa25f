package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reconcile-cli/internal/model"
)

var schemaFormat string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the stored record schema descriptor",
	Long:  "Describes every persisted field of a reconciliation record (type, description, review editability) so UI and automation consumers stay aligned with storage.",
	RunE: func(cmd *cobra.Command, args []string) error {
		desc := model.DescribeRecordSchema(cfg.Store.Collection)

		switch schemaFormat {
		case "json":
			return printJSON(desc)
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(desc)
		default:
			return eris.Errorf("unknown format %q (want json or yaml)", schemaFormat)
		}
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(schemaCmd)
}
