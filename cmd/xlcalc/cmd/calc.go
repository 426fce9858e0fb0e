package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/nissl-lab/npoi-sub056/packages/spreadsheet"
	"github.com/nissl-lab/npoi-sub056/packages/xlsx"
	"github.com/spf13/cobra"
)

type cellResult struct {
	Cell    string `json:"cell"`
	Formula string `json:"formula"`
	Kind    string `json:"kind"`
	Value   any    `json:"value"`
}

var calcCmd = &cobra.Command{
	Use:   "calc <file>",
	Short: "Recalculate formulas and print their results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wb, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		if err := wb.Spreadsheet.Calculate(cmd.Context()); err != nil {
			return err
		}
		results, err := collect(wb)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s\t=%s\t%v\n", r.Cell, r.Formula, r.Value)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(calcCmd)
}

// collect lists every formula cell with its current value in sheet order
func collect(wb *xlsx.Workbook) ([]cellResult, error) {
	s := wb.Spreadsheet
	var results []cellResult
	for addr := range s.FormulaCells() {
		sheet, ok := s.WorksheetName(addr.WorksheetID)
		if !ok {
			continue
		}
		name := quote(sheet) + "!" + spreadsheet.CellName(addr.Row, addr.Column)
		formula, err := s.Formula(name)
		if err != nil {
			return nil, err
		}
		value := s.Engine().Value(addr)
		results = append(results, cellResult{
			Cell:    name,
			Formula: formula,
			Kind:    value.Kind().String(),
			Value:   plain(value),
		})
	}
	return results, nil
}

// quote wraps sheet names that are not plain identifiers
func quote(sheet string) string {
	plain := sheet != "" && !unicode.IsDigit(rune(sheet[0]))
	for _, r := range sheet {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			plain = false
		}
	}
	if plain {
		return sheet
	}
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// plain converts a value to its JSON form
func plain(v spreadsheet.Value) any {
	switch v.Kind() {
	case spreadsheet.KindNumber:
		return v.Num()
	case spreadsheet.KindBoolean:
		return v.Bool()
	case spreadsheet.KindBlank:
		return nil
	default:
		return v.String()
	}
}
