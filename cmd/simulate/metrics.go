package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeRejected
	outcomeError
)

// classify maps an HTTP status to an outcome. 409 is a lost race, other 4xx
// are business rule rejections such as a doctor being off that day.
func classify(status int, wantStatus int) outcome {
	switch {
	case status == wantStatus:
		return outcomeSuccess
	case status == 409:
		return outcomeConflict
	case status >= 400 && status < 500:
		return outcomeRejected
	default:
		return outcomeError
	}
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeRejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = percentile(latencies, 50)
	p95 = percentile(latencies, 95)
	return avg, min, max, p50, p95
}

type Metrics struct {
	Race     OperationMetrics
	Booking  OperationMetrics
	Confirm  OperationMetrics
	Cancel   OperationMetrics
	ReadByID OperationMetrics
	ListOwn  OperationMetrics
	Slots    OperationMetrics
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	success := atomic.LoadInt64(&om.Success)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if n := atomic.LoadInt64(&om.Conflict); n > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", n, pct(n))
	}
	if n := atomic.LoadInt64(&om.Rejected); n > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", n, pct(n))
	}
	if n := atomic.LoadInt64(&om.Error); n > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", n, pct(n))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func (m *Metrics) Print(cfg SimConfig) {
	rule := strings.Repeat("=", 80)
	fmt.Println("\n" + rule)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(rule)
	fmt.Printf("Duration: %s\n", cfg.Duration)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Println()

	printOperationReport("Same-slot race", &m.Race)
	printOperationReport("Booking", &m.Booking)
	printOperationReport("Confirm", &m.Confirm)
	printOperationReport("Cancel", &m.Cancel)
	printOperationReport("Read by ID", &m.ReadByID)
	printOperationReport("List own", &m.ListOwn)
	printOperationReport("Free slots", &m.Slots)
}
