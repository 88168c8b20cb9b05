package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/greater-social/greater/internal/output"
)

var instanceFormat string

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Show instance metadata and the streaming endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(instanceFormat)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		info, err := s.client.GetInstance(cmd.Context())
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			rendered, err := output.JSON(info)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), output.InstanceTable(info))
		return err
	},
}

func init() {
	rootCmd.AddCommand(instanceCmd)
	instanceCmd.Flags().StringVar(&instanceFormat, "output-format", string(output.FormatTable), "Output format: table|json")
}
