package cmd

import (
	"log/slog"

	"github.com/nissl-lab/npoi-sub056/packages/spreadsheet"
	"github.com/nissl-lab/npoi-sub056/packages/xlsx"
	"github.com/spf13/cobra"
)

var (
	jsonOutput    bool
	verbose       bool
	maxIterations int
	maxChange     float64
)

var rootCmd = &cobra.Command{
	Use:   "xlcalc",
	Short: "Workbook recalculation",
	Long: `Recalculate the formulas of an Excel workbook (.xlsx, .xlsm).

Commands:
  calc   Recalculate every formula and print the results.
  chain  Recalculate and write the resulting calcChain.xml.

Output:
  default  One line per formula cell
  --json   JSON for automation

Examples:
  xlcalc calc report.xlsx
  xlcalc --json calc --iterate 100 model.xlsx
  xlcalc chain report.xlsx -o calcChain.xml`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-formatted results")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
	rootCmd.PersistentFlags().IntVar(&maxIterations, "iterate", 0, "Resolve circular references iteratively, at most this many rounds")
	rootCmd.PersistentFlags().Float64Var(&maxChange, "max-change", 0.001, "Largest change that ends iteration")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// open loads the workbook at path with the options the flags select.
// load warnings are logged and do not fail the command.
func open(cmd *cobra.Command, path string) (*xlsx.Workbook, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts := []spreadsheet.Option{spreadsheet.WithLogger(logger)}
	if maxIterations > 0 {
		opts = append(opts, spreadsheet.WithIteration(maxIterations, maxChange))
	}
	wb, err := xlsx.Open(path, opts...)
	if wb == nil {
		return nil, err
	}
	if err != nil {
		logger.Warn("workbook loaded with problems", "path", path, "error", err)
	}
	return wb, nil
}
