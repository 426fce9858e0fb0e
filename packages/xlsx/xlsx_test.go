package xlsx

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/nissl-lab/npoi-sub056/packages/calcchain"
	"github.com/nissl-lab/npoi-sub056/packages/spreadsheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func quiet() spreadsheet.Option {
	return spreadsheet.WithLogHandler(slog.NewTextHandler(io.Discard, nil))
}

// buildWorkbook returns a two-sheet workbook with literals, formulas and a
// defined name
func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Data")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Sheet1", "A1", 10))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", 32))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "label"))
	require.NoError(t, f.SetCellValue("Sheet1", "C1", true))
	require.NoError(t, f.SetCellFormula("Sheet1", "A3", "SUM(A1:A2)"))
	require.NoError(t, f.SetCellFormula("Data", "A1", "Sheet1!A3*2"))
	require.NoError(t, f.SetCellFormula("Data", "A2", "SUM(Inputs)"))
	require.NoError(t, f.SetSheetDimension("Sheet1", "A1:C3"))
	require.NoError(t, f.SetSheetDimension("Data", "A1:A2"))
	require.NoError(t, f.SetDefinedName(&excelize.DefinedName{
		Name:     "Inputs",
		RefersTo: "Sheet1!$A$1:$A$2",
	}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// withChain copies a workbook package and adds a calc chain part
func withChain(t *testing.T, data []byte, chain string) []byte {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	f.Pkg.Store(calcChainPart, []byte(chain))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestLoadAndCalculate(t *testing.T) {
	wb, err := Load(buildWorkbook(t), quiet())
	require.NoError(t, err)
	s := wb.Spreadsheet

	assert.Equal(t, []string{"Sheet1", "Data"}, s.ListWorksheets())
	assert.Equal(t, []string{"Inputs"}, s.ListNames())
	require.NoError(t, s.Calculate(context.Background()))

	v, err := s.Get("Sheet1!A3")
	require.NoError(t, err)
	assert.Equal(t, spreadsheet.Number(42), v)

	v, err = s.Get("Data!A1")
	require.NoError(t, err)
	assert.Equal(t, spreadsheet.Number(84), v)

	v, err = s.Get("Data!A2")
	require.NoError(t, err)
	assert.Equal(t, spreadsheet.Number(42), v)

	v, err = s.Get("Sheet1!B1")
	require.NoError(t, err)
	assert.Equal(t, spreadsheet.Text("label"), v)

	v, err = s.Get("Sheet1!C1")
	require.NoError(t, err)
	assert.Equal(t, spreadsheet.Boolean(true), v)
}

func TestChainRoundTrip(t *testing.T) {
	wb, err := Load(buildWorkbook(t), quiet())
	require.NoError(t, err)
	require.NoError(t, wb.Spreadsheet.Calculate(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, wb.WriteChain(&buf))
	entries, err := calcchain.Decode(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Sheet1!A3 feeds both Data formulas, so it is computed first
	assert.Equal(t, "A3", entries[0].Ref)
	assert.True(t, entries[0].NewThread)

	reloaded, err := Load(withChain(t, buildWorkbook(t), buf.String()), quiet())
	require.NoError(t, err)
	hints := reloaded.Spreadsheet.Engine().Chain()
	require.Len(t, hints, 3)
	sheet1, _ := reloaded.Spreadsheet.WorksheetID("Sheet1")
	assert.Equal(t, spreadsheet.CellAddress{WorksheetID: sheet1, Row: 2, Column: 0}, hints[0].Address)
}

func TestStaleChainIsReported(t *testing.T) {
	chain := `<calcChain xmlns="` + calcchain.Namespace + `">` +
		`<c r="A3" i="1"/><c r="Z9"/><c r="A3"/></calcChain>`
	wb, err := Load(withChain(t, buildWorkbook(t), chain), quiet())
	require.Error(t, err)
	require.NotNil(t, wb)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.NotEmpty(t, merr.Errors)

	require.NoError(t, wb.Spreadsheet.Calculate(context.Background()))
	v, err := wb.Spreadsheet.Get("Data!A1")
	require.NoError(t, err)
	assert.Equal(t, spreadsheet.Number(84), v)
}

func TestArrayFlagSurvivesChainRoundTrip(t *testing.T) {
	chain := `<calcChain xmlns="` + calcchain.Namespace + `">` +
		`<c r="A3" i="1" a="1"/><c r="A1" i="2"/><c r="A2"/></calcChain>`
	wb, err := Load(withChain(t, buildWorkbook(t), chain), quiet())
	require.NoError(t, err)
	require.NoError(t, wb.Spreadsheet.Calculate(context.Background()))

	v, err := wb.Spreadsheet.GetArray("Sheet1!A3")
	require.NoError(t, err)
	assert.Equal(t, 42.0, spreadsheet.ResolveSingle(v, 0, 0).Num())

	var buf bytes.Buffer
	require.NoError(t, wb.WriteChain(&buf))
	entries, err := calcchain.Decode(&buf)
	require.NoError(t, err)

	arrays := map[string]bool{}
	for _, e := range entries {
		arrays[strconv.Itoa(e.SheetID)+"!"+e.Ref] = e.Array
	}
	assert.Equal(t, map[string]bool{"1!A3": true, "2!A1": false, "2!A2": false}, arrays)
	assert.Contains(t, buf.String(), `a="1"`)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, spreadsheet.Boolean(true), literal(excelize.CellTypeBool, "1"))
	assert.Equal(t, spreadsheet.Error(spreadsheet.ErrorCodeDiv0), literal(excelize.CellTypeError, "#DIV/0!"))
	assert.Equal(t, spreadsheet.Text("12"), literal(excelize.CellTypeSharedString, "12"))
	assert.Equal(t, spreadsheet.Number(1.5), literal(excelize.CellTypeUnset, "1.5"))
	assert.Equal(t, spreadsheet.Text("x"), literal(excelize.CellTypeUnset, "x"))
}
