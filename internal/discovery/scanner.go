package discovery

import (
	"context"
	"log/slog"
	"sync"
)

// ProgressFunc receives the running probe count after each settled batch.
type ProgressFunc func(scanned, total int)

// Scanner drives a Prober across an ordered port sequence in fixed-size
// batches: every port in a batch is probed concurrently, batches run
// strictly in sequence, and the scan stops at the first batch containing
// an available port.
type Scanner struct {
	Prober    Prober
	BatchSize int
}

func NewScanner(prober Prober, batchSize int) *Scanner {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Scanner{Prober: prober, BatchSize: batchSize}
}

// Scan probes ports in input order and returns the first available one.
// Within a batch the winner is the lowest-indexed available port in input
// order, regardless of which probe settled first. Progress is reported
// after every batch, including the one that yields the match.
func (s *Scanner) Scan(ctx context.Context, ports []int, onProgress ProgressFunc) (int, bool) {
	total := len(ports)
	scanned := 0

	for start := 0; start < total; start += s.BatchSize {
		end := start + s.BatchSize
		if end > total {
			end = total
		}
		chunk := ports[start:end]

		results := make([]bool, len(chunk))
		var wg sync.WaitGroup
		for i, port := range chunk {
			wg.Add(1)
			go func(i, port int) {
				defer wg.Done()
				results[i] = s.Prober.Probe(ctx, port).Available()
			}(i, port)
		}
		wg.Wait()

		scanned += len(chunk)
		if onProgress != nil {
			onProgress(scanned, total)
		}

		for i, available := range results {
			if available {
				slog.Debug("port scan hit", "port", chunk[i], "scanned", scanned, "total", total)
				return chunk[i], true
			}
		}

		if ctx.Err() != nil {
			slog.Debug("port scan cancelled", "scanned", scanned, "total", total)
			return 0, false
		}
	}

	slog.Debug("port scan exhausted", "total", total)
	return 0, false
}

// PortRange builds the ordered candidate sequence [start, end]. A range of
// exactly one port is ordinary input.
func PortRange(start, end int) []int {
	if end < start {
		return nil
	}
	ports := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		ports = append(ports, p)
	}
	return ports
}
