package discovery

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeProber settles according to a scripted availability map, with
// optional per-port latency to exercise arrival-order independence.
type fakeProber struct {
	mu        sync.Mutex
	available map[int]bool
	delays    map[int]time.Duration
	calls     []int
}

func (f *fakeProber) Probe(ctx context.Context, port int) ProbeResult {
	f.mu.Lock()
	f.calls = append(f.calls, port)
	ok := f.available[port]
	d := f.delays[port]
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ProbeResult{Status: StatusTimeout, Err: ctx.Err()}
		}
	}
	if ok {
		return ProbeResult{Status: StatusAvailable}
	}
	return ProbeResult{Status: StatusUnavailable}
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestScan_SingleElementRange(t *testing.T) {
	p := &fakeProber{available: map[int]bool{9090: true}}
	s := NewScanner(p, 5)

	port, ok := s.Scan(context.Background(), PortRange(9090, 9090), nil)
	if !ok || port != 9090 {
		t.Errorf("scan = (%d, %v), want (9090, true)", port, ok)
	}
	if p.callCount() != 1 {
		t.Errorf("probes = %d, want 1", p.callCount())
	}
}

func TestScan_ProbeCountRoundsUpToBatch(t *testing.T) {
	// First available port is the 7th in scan order; with batch size 3 the
	// scan must settle 9 probes (three full batches) before stopping.
	ports := PortRange(9000, 9011)
	p := &fakeProber{available: map[int]bool{9006: true}}
	s := NewScanner(p, 3)

	port, ok := s.Scan(context.Background(), ports, nil)
	if !ok || port != 9006 {
		t.Fatalf("scan = (%d, %v), want (9006, true)", port, ok)
	}
	if p.callCount() != 9 {
		t.Errorf("probes = %d, want 9 (index 7 rounded up to batch multiple)", p.callCount())
	}
}

func TestScan_ExhaustionBatchCount(t *testing.T) {
	// 12 ports, batch size 5 -> ceil(12/5) = 3 batches, 12 probes, no match.
	ports := PortRange(9000, 9011)
	p := &fakeProber{available: map[int]bool{}}
	s := NewScanner(p, 5)

	var progressCalls int
	port, ok := s.Scan(context.Background(), ports, func(scanned, total int) {
		progressCalls++
	})
	if ok {
		t.Fatalf("scan found %d, want none", port)
	}
	if p.callCount() != 12 {
		t.Errorf("probes = %d, want 12", p.callCount())
	}
	if progressCalls != 3 {
		t.Errorf("progress calls = %d, want 3 batches", progressCalls)
	}
}

func TestScan_ProgressMonotonicAndIncludesMatchBatch(t *testing.T) {
	ports := PortRange(9000, 9009)
	p := &fakeProber{available: map[int]bool{9007: true}}
	s := NewScanner(p, 4)

	var reports [][2]int
	port, ok := s.Scan(context.Background(), ports, func(scanned, total int) {
		reports = append(reports, [2]int{scanned, total})
	})
	if !ok || port != 9007 {
		t.Fatalf("scan = (%d, %v), want (9007, true)", port, ok)
	}

	// Two batches ran (ports 0-3, then 4-7 containing the match); the
	// matching batch still reports progress.
	want := [][2]int{{4, 10}, {8, 10}}
	if len(reports) != len(want) {
		t.Fatalf("progress reports = %v, want %v", reports, want)
	}
	prev := 0
	for i, r := range reports {
		if r != want[i] {
			t.Errorf("report[%d] = %v, want %v", i, r, want[i])
		}
		if r[0] < prev {
			t.Errorf("progress went backwards: %v", reports)
		}
		prev = r[0]
	}
}

func TestScan_StopsAfterMatchingBatch(t *testing.T) {
	ports := PortRange(9000, 9019)
	p := &fakeProber{available: map[int]bool{9002: true}}
	s := NewScanner(p, 5)

	_, ok := s.Scan(context.Background(), ports, nil)
	if !ok {
		t.Fatal("expected match")
	}
	if p.callCount() != 5 {
		t.Errorf("probes = %d, want 5 (no batches past the match)", p.callCount())
	}
}

func TestScan_TieBreakIsScanOrderNotArrival(t *testing.T) {
	// Both 9001 and 9003 are available in the same batch; 9001 is made the
	// slowest responder. Scan order must still win.
	ports := []int{9000, 9001, 9002, 9003}
	p := &fakeProber{
		available: map[int]bool{9001: true, 9003: true},
		delays: map[int]time.Duration{
			9001: 80 * time.Millisecond,
			9003: time.Millisecond,
		},
	}
	s := NewScanner(p, 4)

	port, ok := s.Scan(context.Background(), ports, nil)
	if !ok || port != 9001 {
		t.Errorf("scan = (%d, %v), want (9001, true) by scan order", port, ok)
	}
}

func TestScan_LastBatchMayBeShort(t *testing.T) {
	ports := PortRange(9000, 9006) // 7 ports, batch 5 -> batches of 5 and 2
	p := &fakeProber{available: map[int]bool{9006: true}}
	s := NewScanner(p, 5)

	var reports [][2]int
	port, ok := s.Scan(context.Background(), ports, func(scanned, total int) {
		reports = append(reports, [2]int{scanned, total})
	})
	if !ok || port != 9006 {
		t.Fatalf("scan = (%d, %v), want (9006, true)", port, ok)
	}
	want := [][2]int{{5, 7}, {7, 7}}
	if len(reports) != 2 || reports[0] != want[0] || reports[1] != want[1] {
		t.Errorf("progress = %v, want %v", reports, want)
	}
}

func TestScan_EmptyRange(t *testing.T) {
	p := &fakeProber{}
	s := NewScanner(p, 5)

	_, ok := s.Scan(context.Background(), nil, nil)
	if ok {
		t.Error("empty range must not match")
	}
	if p.callCount() != 0 {
		t.Errorf("probes = %d, want 0", p.callCount())
	}
}

func TestScan_CancelStopsBetweenBatches(t *testing.T) {
	ports := PortRange(9000, 9019)
	p := &fakeProber{available: map[int]bool{}}
	s := NewScanner(p, 5)

	ctx, cancel := context.WithCancel(context.Background())
	first := true
	_, ok := s.Scan(ctx, ports, func(scanned, total int) {
		if first {
			first = false
			cancel()
		}
	})
	if ok {
		t.Fatal("cancelled scan must not match")
	}
	if p.callCount() != 5 {
		t.Errorf("probes = %d, want 5 (no batch after cancel)", p.callCount())
	}
}

func TestPortRange(t *testing.T) {
	r := PortRange(9090, 9092)
	if len(r) != 3 || r[0] != 9090 || r[2] != 9092 {
		t.Errorf("range = %v", r)
	}
	if single := PortRange(9090, 9090); len(single) != 1 {
		t.Errorf("single range = %v, want one element", single)
	}
	if inverted := PortRange(9091, 9090); inverted != nil {
		t.Errorf("inverted range = %v, want nil", inverted)
	}
}
