package output

import (
	"fmt"
	"io"
	"time"

	"github.com/pulsebench/pulsebench/internal/metrics"
)

// PrintBenchSummary prints the round-trip digest of a chat bench from the
// live histogram of rtt, plus the number of timed-out waits.
func PrintBenchSummary(w io.Writer, rtt metrics.LiveStats, timeouts int64, elapsed time.Duration) {
	fmt.Fprintln(w, "\n--- Chat Bench ---")
	if rtt.Count == 0 {
		fmt.Fprintf(w, "No round trips recorded (timeouts: %d)\n", timeouts)
		return
	}
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(rtt.Count) / elapsed.Seconds()
	}
	fmt.Fprintf(w, "Messages:          %d\n", rtt.Count)
	fmt.Fprintf(w, "Timeouts:          %d\n", timeouts)
	fmt.Fprintf(w, "Throughput:        %.2f msg/s\n", throughput)
	fmt.Fprintln(w, "RTT (ms):")
	fmt.Fprintf(w, "  Min:             %.3f\n", rtt.Min)
	fmt.Fprintf(w, "  Mean:            %.3f\n", rtt.Mean)
	fmt.Fprintf(w, "  P50:             %.3f\n", rtt.P50)
	fmt.Fprintf(w, "  P90:             %.3f\n", rtt.P90)
	fmt.Fprintf(w, "  P99:             %.3f\n", rtt.P99)
	fmt.Fprintf(w, "  P99.9:           %.3f\n", rtt.P999)
	fmt.Fprintf(w, "  Max:             %.3f\n", rtt.Max)
}
