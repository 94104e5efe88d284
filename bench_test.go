package calc

import (
	"context"
	"fmt"
	"testing"
)

func newBenchEngine(b *testing.B, opts ...Option) *Engine {
	b.Helper()
	opts = append([]Option{WithCalcSettings(CalcSettings{Mode: CalcManual, FullPrecision: true})}, opts...)
	e := NewEngine(opts...)
	if _, err := e.EnsureSheet("Sheet1"); err != nil {
		b.Fatal(err)
	}
	return e
}

func mustSet(b *testing.B, e *Engine, address string, v Value) {
	b.Helper()
	if err := e.Set(address, v); err != nil {
		b.Fatalf("Set(%s): %v", address, err)
	}
}

func recalc(b *testing.B, e *Engine) {
	b.Helper()
	if err := e.Recalculate(context.Background()); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkLargeCellPopulation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		e := newBenchEngine(b)
		for row := 1; row <= 100; row++ {
			for col := 1; col <= 26; col++ {
				mustSet(b, e, fmt.Sprintf("Sheet1!%c%d", 'A'+col-1, row), float64(row*col))
			}
		}
	}
}

func BenchmarkFormulaDependencyChain(b *testing.B) {
	e := newBenchEngine(b)
	mustSet(b, e, "Sheet1!A1", 1.0)
	for i := 2; i <= 100; i++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("=A%d+1", i-1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, e, "Sheet1!A1", float64(i))
		recalc(b, e)
	}
}

func BenchmarkWideDependencyFanOut(b *testing.B) {
	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			e := newBenchEngine(b, WithWorkers(workers))
			mustSet(b, e, "Sheet1!A1", 100.0)
			for i := 2; i <= 500; i++ {
				mustSet(b, e, fmt.Sprintf("Sheet1!B%d", i), "=A1*2")
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				mustSet(b, e, "Sheet1!A1", float64(i))
				recalc(b, e)
			}
		})
	}
}

func BenchmarkLargeRangeSUM(b *testing.B) {
	e := newBenchEngine(b)
	for i := 1; i <= 1000; i++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!A%d", i), float64(i))
	}
	mustSet(b, e, "Sheet1!B1", "=SUM(A1:A1000)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, e, "Sheet1!A500", float64(i))
		recalc(b, e)
	}
}

func BenchmarkComplexNestedFormulas(b *testing.B) {
	for _, bytecode := range []bool{false, true} {
		b.Run(fmt.Sprintf("bytecode=%v", bytecode), func(b *testing.B) {
			e := newBenchEngine(b, WithBytecode(bytecode))
			for i := 1; i <= 20; i++ {
				mustSet(b, e, fmt.Sprintf("Sheet1!A%d", i), float64(i))
				mustSet(b, e, fmt.Sprintf("Sheet1!B%d", i), float64(i*2))
			}
			mustSet(b, e, "Sheet1!C1", "=IF(AVERAGE(A1:A20)>10, SUM(B1:B20), MAX(A1:A20))")
			mustSet(b, e, "Sheet1!D1", "=ROUND(SQRT(C1)*PI(), 2)")
			mustSet(b, e, "Sheet1!E1", "=IF(D1>100, MEDIAN(A1:A20), MIN(B1:B20))")

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				mustSet(b, e, "Sheet1!A1", float64(i%20))
				recalc(b, e)
			}
		})
	}
}

func BenchmarkVolatileFunctions(b *testing.B) {
	e := newBenchEngine(b, WithRandom(NewSeededRandomGenerator(1)))
	for i := 1; i <= 50; i++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!A%d", i), "=RAND()")
		mustSet(b, e, fmt.Sprintf("Sheet1!B%d", i), fmt.Sprintf("=A%d*100", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		recalc(b, e)
	}
}

func BenchmarkMultiWorksheetReferences(b *testing.B) {
	e := newBenchEngine(b)
	for i := 1; i <= 100; i++ {
		mustSet(b, e, fmt.Sprintf("Data!A%d", i), float64(i))
	}
	mustSet(b, e, "Summary!A1", "=SUM(Data!A1:A100)")
	mustSet(b, e, "Summary!B1", "=AVERAGE(Data!A1:A100)")
	mustSet(b, e, "Summary!C1", "=MAX(Data!A1:A100)")
	mustSet(b, e, "Summary!D1", "=MIN(Data!A1:A100)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, e, "Data!A50", float64(i))
		recalc(b, e)
	}
}

func BenchmarkCascadingUpdates(b *testing.B) {
	e := newBenchEngine(b)
	for row := 1; row <= 50; row++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!A%d", row), float64(row))
		for col := 1; col < 10; col++ {
			mustSet(b, e, fmt.Sprintf("Sheet1!%c%d", 'A'+col, row), fmt.Sprintf("=%c%d*2", 'A'+col-1, row))
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!A%d", i%50+1), float64(i))
		recalc(b, e)
	}
}

func BenchmarkSparseMatrix(b *testing.B) {
	for i := 0; i < b.N; i++ {
		e := newBenchEngine(b)
		for j := 0; j < 100; j++ {
			mustSet(b, e, fmt.Sprintf("Sheet1!%s%d", ColumnName(uint32(j*97%16384)), j*9973%1048576+1), float64(j))
		}
	}
}

func BenchmarkCircularReferenceDetection(b *testing.B) {
	e := newBenchEngine(b)
	for i := 1; i < 50; i++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("=A%d+1", i+1))
	}
	mustSet(b, e, "Sheet1!A50", "=A1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, e, "Sheet1!A50", "=A1")
		recalc(b, e)
	}
}

func BenchmarkManySmallFormulas(b *testing.B) {
	e := newBenchEngine(b)
	for i := 1; i <= 1000; i++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("=%d+%d", i, i*2))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.s.graph.MarkAllFormulasDirty()
		recalc(b, e)
	}
}

func BenchmarkStringConcatenation(b *testing.B) {
	e := newBenchEngine(b)
	for i := 1; i <= 100; i++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("item%d", i))
		mustSet(b, e, fmt.Sprintf("Sheet1!B%d", i), fmt.Sprintf(`=UPPER(A%d)&"-"&LEN(A%d)`, i, i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.s.graph.MarkAllFormulasDirty()
		recalc(b, e)
	}
}

func BenchmarkDirtyPropagation(b *testing.B) {
	e := newBenchEngine(b)
	mustSet(b, e, "Sheet1!A1", 1.0)
	for i := 1; i <= 200; i++ {
		mustSet(b, e, fmt.Sprintf("Sheet1!B%d", i), "=$A$1+ROW()")
		mustSet(b, e, fmt.Sprintf("Sheet1!C%d", i), fmt.Sprintf("=B%d*2", i))
	}
	recalc(b, e)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, e, "Sheet1!A1", float64(i))
	}
}
