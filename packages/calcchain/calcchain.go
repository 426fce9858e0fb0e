// Package calcchain reads and writes the calculation chain part of an
// OOXML workbook (xl/calcChain.xml).
package calcchain

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Namespace is the SpreadsheetML main namespace
const Namespace = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"

// Entry is one cell of the calculation chain
type Entry struct {
	Ref     string // cell reference such as "B3"
	SheetID int    // sheetId from the workbook part
	// Array marks the leader of an array formula (a)
	Array bool
	// NewThread starts an independent calculation thread (t)
	NewThread bool
	// NewLevel marks a cell that had to be computed ahead of its position,
	// or a volatile one (l)
	NewLevel bool
	// Child marks a cell that belongs to the chain of the previous
	// array or data table cell (s)
	Child bool
}

type xmlCalcChain struct {
	XMLName xml.Name  `xml:"calcChain"`
	Xmlns   string    `xml:"xmlns,attr,omitempty"`
	Cells   []xmlCell `xml:"c"`
}

type xmlCell struct {
	R string `xml:"r,attr"`
	I string `xml:"i,attr,omitempty"`
	S string `xml:"s,attr,omitempty"`
	L string `xml:"l,attr,omitempty"`
	T string `xml:"t,attr,omitempty"`
	A string `xml:"a,attr,omitempty"`
}

func flag(s string) bool {
	return s == "1" || s == "true"
}

func attr(b bool) string {
	if b {
		return "1"
	}
	return ""
}

// Decode reads a calculation chain. a missing sheet id repeats the sheet
// of the previous entry.
func Decode(r io.Reader) ([]Entry, error) {
	var doc xmlCalcChain
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding calc chain: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Cells))
	sheetID := 0
	for n, c := range doc.Cells {
		if c.I != "" {
			id, err := strconv.Atoi(c.I)
			if err != nil {
				return nil, fmt.Errorf("calc chain entry %d: invalid sheet id %q", n, c.I)
			}
			sheetID = id
		}
		if sheetID == 0 {
			return nil, fmt.Errorf("calc chain entry %d: no sheet id", n)
		}
		if _, _, err := excelize.CellNameToCoordinates(c.R); err != nil {
			return nil, fmt.Errorf("calc chain entry %d: %w", n, err)
		}
		entries = append(entries, Entry{
			Ref:       c.R,
			SheetID:   sheetID,
			Array:     flag(c.A),
			NewThread: flag(c.T),
			NewLevel:  flag(c.L),
			Child:     flag(c.S),
		})
	}
	return entries, nil
}

// Encode writes a calculation chain. sheet ids equal to the previous
// entry's are omitted.
func Encode(w io.Writer, entries []Entry) error {
	doc := xmlCalcChain{Xmlns: Namespace, Cells: make([]xmlCell, len(entries))}
	prev := 0
	for n, e := range entries {
		if e.SheetID <= 0 {
			return fmt.Errorf("calc chain entry %d (%s): sheet id must be positive", n, e.Ref)
		}
		c := xmlCell{
			R: e.Ref,
			S: attr(e.Child),
			L: attr(e.NewLevel),
			T: attr(e.NewThread),
			A: attr(e.Array),
		}
		if e.SheetID != prev {
			c.I = strconv.Itoa(e.SheetID)
			prev = e.SheetID
		}
		doc.Cells[n] = c
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding calc chain: %w", err)
	}
	return enc.Close()
}
