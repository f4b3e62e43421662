package health

import (
	"context"
	"fmt"
	"testing"
)

// Benchmark_Check_NoChecks benchmarks an empty aggregation.
func Benchmark_Check_NoChecks(b *testing.B) {
	checker := New()
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = checker.Check(ctx)
	}
}

// Benchmark_Check_FourChecks benchmarks the standard-sized aggregation;
// external probes hit this path continuously.
func Benchmark_Check_FourChecks(b *testing.B) {
	checker := New()
	for i := 0; i < 4; i++ {
		checker.RegisterCheck(fmt.Sprintf("check-%d", i), staticCheck(StatusHealthy, ""))
	}
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = checker.Check(ctx)
	}
}

// Benchmark_Check_WorstCase benchmarks aggregation with a failing check
// carrying a message.
func Benchmark_Check_WorstCase(b *testing.B) {
	checker := New()
	checker.RegisterCheck("healthy", staticCheck(StatusHealthy, ""))
	checker.RegisterCheck("failing", staticCheck(StatusCritical, "component down"))
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = checker.Check(ctx)
	}
}

// Benchmark_Worst benchmarks the severity reduction.
func Benchmark_Worst(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Worst(StatusDegraded, StatusUnhealthy)
	}
}
