// Package xlsx loads OOXML workbooks into a spreadsheet and exchanges their
// calculation chain with its engine.
package xlsx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/nissl-lab/npoi-sub056/packages/calcchain"
	"github.com/nissl-lab/npoi-sub056/packages/spreadsheet"
	"github.com/xuri/excelize/v2"
)

const calcChainPart = "xl/calcChain.xml"

// Workbook is a loaded workbook
type Workbook struct {
	Spreadsheet *spreadsheet.Spreadsheet
	// sheet ids of the workbook part, by worksheet ID
	sheetIDs map[uint32]int
	// worksheet IDs by sheet id
	worksheets map[int]uint32
}

// Open reads an .xlsx file from disk
func Open(path string, opts ...spreadsheet.Option) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workbook: %w", err)
	}
	return Load(data, opts...)
}

// Load reads an .xlsx from memory. literal values, formulas, workbook
// scoped names and the calculation chain are loaded. problems that do not
// prevent calculation are returned as a *multierror.Error alongside a
// usable workbook.
func Load(data []byte, opts ...spreadsheet.Option) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	s, err := spreadsheet.NewSpreadsheet(opts...)
	if err != nil {
		return nil, err
	}
	wb := &Workbook{
		Spreadsheet: s,
		sheetIDs:    make(map[uint32]int),
		worksheets:  make(map[int]uint32),
	}

	var warnings *multierror.Error
	sheetIDs := make(map[string]int)
	for id, name := range f.GetSheetMap() {
		sheetIDs[name] = id
	}

	for _, name := range f.GetSheetList() {
		if err := s.AddWorksheet(name); err != nil {
			return nil, fmt.Errorf("adding worksheet %q: %w", name, err)
		}
		wsID, _ := s.WorksheetID(name)
		wb.sheetIDs[wsID] = sheetIDs[name]
		wb.worksheets[sheetIDs[name]] = wsID
		if err := loadSheet(f, s, name); err != nil {
			warnings = multierror.Append(warnings, err)
		}
	}

	for _, dn := range f.GetDefinedName() {
		if dn.Scope != "" && dn.Scope != "Workbook" {
			continue
		}
		refersTo := strings.TrimPrefix(dn.RefersTo, "=")
		if err := s.DefineName(dn.Name, refersTo); err != nil {
			warnings = multierror.Append(warnings, fmt.Errorf("defined name %s: %w", dn.Name, err))
		}
	}

	entries, err := readChain(f)
	if err != nil {
		warnings = multierror.Append(warnings, err)
	} else if entries != nil {
		hints := wb.hints(entries)
		if err := wb.markArrays(hints); err != nil {
			warnings = multierror.Append(warnings, err)
		}
		if err := s.Engine().LoadChain(hints); err != nil {
			warnings = multierror.Append(warnings, err)
		}
	}

	if err := warnings.ErrorOrNil(); err != nil {
		return wb, err
	}
	return wb, nil
}

// loadSheet copies one worksheet. cells holding only a formula without a
// cached value are invisible to GetRows, so the scan also covers the
// worksheet's recorded dimension.
func loadSheet(f *excelize.File, s *spreadsheet.Spreadsheet, sheet string) error {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return fmt.Errorf("reading %s: %w", sheet, err)
	}
	maxRow, maxCol := len(rows), 0
	for _, row := range rows {
		maxCol = max(maxCol, len(row))
	}
	if dim, err := f.GetSheetDimension(sheet); err == nil && dim != "" {
		_, end, _ := strings.Cut(dim, ":")
		if end == "" {
			end = dim
		}
		if col, row, err := excelize.CellNameToCoordinates(end); err == nil {
			maxRow, maxCol = max(maxRow, row), max(maxCol, col)
		}
	}

	var result *multierror.Error
	for r := 0; r < maxRow; r++ {
		for c := 0; c < maxCol; c++ {
			var raw string
			if r < len(rows) && c < len(rows[r]) {
				raw = rows[r][c]
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			address := quoteSheet(sheet) + "!" + cell

			formula, err := f.GetCellFormula(sheet, cell)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			if formula != "" {
				if err := s.Set(address, "="+formula); err != nil {
					result = multierror.Append(result, err)
				}
				continue
			}
			if raw == "" {
				continue
			}

			typ, err := f.GetCellType(sheet, cell)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			if err := s.Set(address, literal(typ, raw)); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// literal converts a raw cell value by its stored type
func literal(typ excelize.CellType, raw string) spreadsheet.Value {
	switch typ {
	case excelize.CellTypeBool:
		return spreadsheet.Boolean(raw == "1" || strings.EqualFold(raw, "true"))
	case excelize.CellTypeError:
		if code, ok := spreadsheet.ParseErrorCode(raw); ok {
			return spreadsheet.Error(code)
		}
		return spreadsheet.Error(spreadsheet.ErrorCodeValue)
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return spreadsheet.Text(raw)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return spreadsheet.Number(f)
	}
	return spreadsheet.Text(raw)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// readChain returns the calc chain part, or nil when the workbook has none
func readChain(f *excelize.File) ([]calcchain.Entry, error) {
	part, ok := f.Pkg.Load(calcChainPart)
	if !ok {
		return nil, nil
	}
	data, ok := part.([]byte)
	if !ok {
		return nil, fmt.Errorf("%s has unexpected content %T", calcChainPart, part)
	}
	return calcchain.Decode(bytes.NewReader(data))
}

// markArrays turns the formulas the chain flags as array leaders into
// array formulas. cell formulas read through excelize do not say whether
// they were entered as arrays.
func (wb *Workbook) markArrays(hints []spreadsheet.ChainHint) error {
	s := wb.Spreadsheet
	var result *multierror.Error
	for _, h := range hints {
		if !h.ArrayLeader {
			continue
		}
		sheet, ok := s.WorksheetName(h.Address.WorksheetID)
		if !ok {
			continue
		}
		address := quoteSheet(sheet) + "!" + spreadsheet.CellName(h.Address.Row, h.Address.Column)
		formula, err := s.Formula(address)
		if err != nil || formula == "" {
			continue
		}
		if err := s.SetArrayFormula(address, formula); err != nil {
			result = multierror.Append(result, fmt.Errorf("array formula %s: %w", address, err))
		}
	}
	return result.ErrorOrNil()
}

// hints maps calc chain entries onto worksheet addresses. entries naming
// unknown sheets are skipped; the engine appends their cells anyway.
func (wb *Workbook) hints(entries []calcchain.Entry) []spreadsheet.ChainHint {
	hints := make([]spreadsheet.ChainHint, 0, len(entries))
	for _, e := range entries {
		wsID, ok := wb.worksheets[e.SheetID]
		if !ok {
			continue
		}
		col, row, err := excelize.CellNameToCoordinates(e.Ref)
		if err != nil {
			continue
		}
		hints = append(hints, spreadsheet.ChainHint{
			Address: spreadsheet.CellAddress{
				WorksheetID: wsID,
				Row:         uint32(row - 1),
				Column:      uint32(col - 1),
			},
			ArrayLeader: e.Array,
			NewThread:   e.NewThread,
			Uncertain:   e.NewLevel,
		})
	}
	return hints
}

// Chain returns the engine's current calculation order as chain entries
func (wb *Workbook) Chain() ([]calcchain.Entry, error) {
	hints := wb.Spreadsheet.Engine().Chain()
	entries := make([]calcchain.Entry, 0, len(hints))
	for _, h := range hints {
		sheetID, ok := wb.sheetIDs[h.Address.WorksheetID]
		if !ok {
			return nil, fmt.Errorf("worksheet %d has no sheet id", h.Address.WorksheetID)
		}
		ref, err := excelize.CoordinatesToCellName(int(h.Address.Column)+1, int(h.Address.Row)+1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, calcchain.Entry{
			Ref:       ref,
			SheetID:   sheetID,
			Array:     h.ArrayLeader,
			NewThread: h.NewThread,
			NewLevel:  h.Uncertain,
		})
	}
	return entries, nil
}

// WriteChain writes the engine's calculation order as calcChain.xml
func (wb *Workbook) WriteChain(w io.Writer) error {
	entries, err := wb.Chain()
	if err != nil {
		return err
	}
	return calcchain.Encode(w, entries)
}
