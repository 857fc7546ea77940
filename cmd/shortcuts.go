package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/camden-git/entomobackend/config"
)

func shortcutsCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "shortcuts",
		Short: "Print the editor keyboard shortcuts",
		RunE: func(cmd *cobra.Command, args []string) error {
			shortcuts := config.DefaultShortcuts()
			var (
				out []byte
				err error
			)
			switch format {
			case "yaml":
				out, err = yaml.Marshal(shortcuts)
			case "json":
				out, err = json.MarshalIndent(shortcuts, "", "  ")
				out = append(out, '\n')
			default:
				return fmt.Errorf("unknown format %q, want yaml or json", format)
			}
			if err != nil {
				return fmt.Errorf("failed to encode shortcuts: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or json")
	return cmd
}
