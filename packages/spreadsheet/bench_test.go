package spreadsheet

import (
	"context"
	"fmt"
	"testing"
)

func newBenchSpreadsheet(b *testing.B, sheets ...string) *Spreadsheet {
	b.Helper()
	s, err := NewSpreadsheet(quiet())
	if err != nil {
		b.Fatal(err)
	}
	for _, name := range append([]string{"Sheet1"}, sheets...) {
		if err := s.AddWorksheet(name); err != nil {
			b.Fatal(err)
		}
	}
	return s
}

func mustSet(b *testing.B, s *Spreadsheet, address string, value any) {
	if err := s.Set(address, value); err != nil {
		b.Fatal(err)
	}
}

func recalc(b *testing.B, s *Spreadsheet) {
	if err := s.Calculate(context.Background()); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkLargeCellPopulation(b *testing.B) {
	for b.Loop() {
		s := newBenchSpreadsheet(b)
		for row := range uint32(100) {
			for col := range uint32(26) {
				mustSet(b, s, CellName(row, col), float64((row+1)*(col+1)))
			}
		}
	}
}

func BenchmarkFormulaDependencyChain(b *testing.B) {
	s := newBenchSpreadsheet(b)
	mustSet(b, s, "Sheet1!A1", 1.0)
	for i := 2; i <= 100; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("=A%d+1", i-1))
	}

	i := 0
	for b.Loop() {
		mustSet(b, s, "Sheet1!A1", float64(i))
		recalc(b, s)
		i++
	}
}

func BenchmarkWideDependencyFanOut(b *testing.B) {
	s := newBenchSpreadsheet(b)
	mustSet(b, s, "Sheet1!A1", 100.0)
	for i := 2; i <= 500; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!B%d", i), "=$A$1*2")
	}

	i := 0
	for b.Loop() {
		mustSet(b, s, "Sheet1!A1", float64(i))
		recalc(b, s)
		i++
	}
}

func BenchmarkLargeRangeSUM(b *testing.B) {
	s := newBenchSpreadsheet(b)
	for i := 1; i <= 1000; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), float64(i))
	}
	mustSet(b, s, "Sheet1!B1", "=SUM(A1:A1000)")

	i := 0
	for b.Loop() {
		mustSet(b, s, "Sheet1!A500", float64(i))
		recalc(b, s)
		i++
	}
}

func BenchmarkComplexNestedFormulas(b *testing.B) {
	s := newBenchSpreadsheet(b)
	for i := 1; i <= 20; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), float64(i))
		mustSet(b, s, fmt.Sprintf("Sheet1!B%d", i), float64(i*2))
	}
	mustSet(b, s, "Sheet1!C1", "=IF(AVERAGE(A1:A20)>10, SUM(B1:B20), MAX(A1:A20))")
	mustSet(b, s, "Sheet1!D1", "=ROUND(SQRT(C1)*PI(), 2)")
	mustSet(b, s, "Sheet1!E1", "=IF(D1>100, MEDIAN(A1:A20), MIN(B1:B20))")

	i := 0
	for b.Loop() {
		mustSet(b, s, "Sheet1!A1", float64(i%20))
		recalc(b, s)
		i++
	}
}

func BenchmarkVolatileFunctions(b *testing.B) {
	s := newBenchSpreadsheet(b)
	for i := 1; i <= 50; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), "=RAND()")
		mustSet(b, s, fmt.Sprintf("Sheet1!B%d", i), fmt.Sprintf("=A%d*100", i))
	}

	for b.Loop() {
		recalc(b, s)
	}
}

func BenchmarkMultiWorksheetReferences(b *testing.B) {
	s := newBenchSpreadsheet(b, "Data", "Summary")
	for i := 1; i <= 100; i++ {
		mustSet(b, s, fmt.Sprintf("Data!A%d", i), float64(i))
	}
	mustSet(b, s, "Summary!A1", "=SUM(Data!A1:A100)")
	mustSet(b, s, "Summary!B1", "=AVERAGE(Data!A1:A100)")
	mustSet(b, s, "Summary!C1", "=MAX(Data!A1:A100)")
	mustSet(b, s, "Summary!D1", "=MIN(Data!A1:A100)")

	i := 0
	for b.Loop() {
		mustSet(b, s, "Data!A50", float64(i))
		recalc(b, s)
		i++
	}
}

func BenchmarkCascadingUpdates(b *testing.B) {
	s := newBenchSpreadsheet(b)
	for row := uint32(0); row < 50; row++ {
		mustSet(b, s, CellName(row, 0), float64(row+1))
		for col := uint32(1); col < 10; col++ {
			mustSet(b, s, CellName(row, col), "="+CellName(row, col-1)+"*2")
		}
	}

	i := 0
	for b.Loop() {
		mustSet(b, s, "Sheet1!A1", float64(i%100))
		recalc(b, s)
		i++
	}
}

func BenchmarkSparseMatrix(b *testing.B) {
	s := newBenchSpreadsheet(b)
	for row := uint32(0); row < 1000; row += 10 {
		for col := uint32(0); col < 1000; col += 10 {
			mustSet(b, s, CellName(row, col), float64(row+col))
		}
	}
	mustSet(b, s, "Sheet1!ALZ1001", "=SUM(A1:ALL1000)")

	i := 0
	for b.Loop() {
		mustSet(b, s, "Sheet1!A1", float64(i))
		recalc(b, s)
		i++
	}
}

func BenchmarkCircularReferenceDetection(b *testing.B) {
	for b.Loop() {
		s := newBenchSpreadsheet(b)
		mustSet(b, s, "Sheet1!A1", "=B1+C1")
		mustSet(b, s, "Sheet1!B1", "=C1+D1")
		mustSet(b, s, "Sheet1!C1", "=D1+E1")
		mustSet(b, s, "Sheet1!D1", "=E1+F1")
		mustSet(b, s, "Sheet1!E1", "=F1+G1")
		mustSet(b, s, "Sheet1!F1", "=G1+H1")
		mustSet(b, s, "Sheet1!G1", "=H1+A1")
		mustSet(b, s, "Sheet1!H1", "=A1")
		recalc(b, s)
	}
}

func BenchmarkManySmallFormulas(b *testing.B) {
	s := newBenchSpreadsheet(b)
	for row := 1; row <= 100; row++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", row), float64(row))
		mustSet(b, s, fmt.Sprintf("Sheet1!B%d", row), fmt.Sprintf("=A%d*2", row))
		mustSet(b, s, fmt.Sprintf("Sheet1!C%d", row), fmt.Sprintf("=B%d+A%d", row, row))
		mustSet(b, s, fmt.Sprintf("Sheet1!D%d", row), fmt.Sprintf("=C%d/2", row))
	}

	for b.Loop() {
		for row := 1; row <= 100; row++ {
			s.Engine().MarkDirty(CellAddress{WorksheetID: 1, Row: uint32(row - 1)})
		}
		recalc(b, s)
	}
}

func BenchmarkStringConcatenation(b *testing.B) {
	s := newBenchSpreadsheet(b)
	for i := 1; i <= 100; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("text%d", i))
		mustSet(b, s, fmt.Sprintf("Sheet1!B%d", i), fmt.Sprintf(`=A%d&"-suffix"`, i))
		mustSet(b, s, fmt.Sprintf("Sheet1!C%d", i), fmt.Sprintf(`=PROPER(SUBSTITUTE(B%d,"-"," "))`, i))
	}
	mustSet(b, s, "Sheet1!D1", "=CONCAT(C1:C100)")

	i := 0
	for b.Loop() {
		mustSet(b, s, "Sheet1!A1", fmt.Sprintf("text%d", i))
		recalc(b, s)
		i++
	}
}

func BenchmarkDirtyPropagation(b *testing.B) {
	s := newBenchSpreadsheet(b)
	const grid = 20
	for row := uint32(0); row < grid; row++ {
		for col := uint32(0); col < grid; col++ {
			var value any
			switch {
			case row == 0 && col == 0:
				value = 1.0
			case row == 0:
				value = "=" + CellName(row, col-1) + "+1"
			case col == 0:
				value = "=" + CellName(row-1, col) + "+1"
			default:
				value = "=" + CellName(row, col-1) + "+" + CellName(row-1, col)
			}
			mustSet(b, s, CellName(row, col), value)
		}
	}
	recalc(b, s)

	i := 0
	for b.Loop() {
		mustSet(b, s, "Sheet1!A1", float64(i%100))
		recalc(b, s)
		i++
	}
}

func BenchmarkFormulaParsing(b *testing.B) {
	parser := NewParser(&ParserContext{CurrentWorksheetID: 1})
	for b.Loop() {
		if _, err := parser.Parse(`=IF(AND(A1>0,B1<>""),ROUND(SUM(C1:C100)/COUNT(C1:C100),2),"n/a")`); err != nil {
			b.Fatal(err)
		}
	}
}
