package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var chainOutput string

var chainCmd = &cobra.Command{
	Use:   "chain <file>",
	Short: "Recalculate and write the calculation chain as calcChain.xml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wb, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		if err := wb.Spreadsheet.Calculate(cmd.Context()); err != nil {
			return err
		}
		if chainOutput == "" {
			return wb.WriteChain(cmd.OutOrStdout())
		}
		f, err := os.Create(chainOutput)
		if err != nil {
			return err
		}
		if err := wb.WriteChain(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

func init() {
	chainCmd.Flags().StringVarP(&chainOutput, "output", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(chainCmd)
}
