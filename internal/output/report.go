package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/runner"
	"github.com/pulsebench/pulsebench/internal/threshold"
)

// Report is the end-of-run summary shared by the text, JSON, YAML and HTML writers.
type Report struct {
	RunID       string                          `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time                       `json:"generated_at" yaml:"generated_at"`
	Protocol    string                          `json:"protocol" yaml:"protocol"`
	Target      string                          `json:"target,omitempty" yaml:"target,omitempty"`
	Duration    time.Duration                   `json:"-" yaml:"-"`
	DurationMs  float64                         `json:"duration_ms" yaml:"duration_ms"`
	Verdict     string                          `json:"verdict" yaml:"verdict"`
	Run         RunSummary                      `json:"run" yaml:"run"`
	Thresholds  []ThresholdResultJSON           `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Counters    map[string]int64                `json:"counters,omitempty" yaml:"counters,omitempty"`
	Rates       map[string]RateSummary          `json:"rates,omitempty" yaml:"rates,omitempty"`
	Gauges      map[string]metrics.GaugeValue   `json:"gauges,omitempty" yaml:"gauges,omitempty"`
	Trends      map[string]metrics.TrendSummary `json:"trends,omitempty" yaml:"trends,omitempty"`
	Statuses    []metrics.StatusBucket          `json:"statuses,omitempty" yaml:"statuses,omitempty"`
	History     []Sample                        `json:"history,omitempty" yaml:"-"`
}

// RunSummary carries the VU manager's bookkeeping.
type RunSummary struct {
	Spawned      int64            `json:"spawned" yaml:"spawned"`
	Retired      int64            `json:"retired" yaml:"retired"`
	StartErrors  int64            `json:"start_errors,omitempty" yaml:"start_errors,omitempty"`
	PeakVUs      int              `json:"peak_vus" yaml:"peak_vus"`
	Iterations   int64            `json:"iterations" yaml:"iterations"`
	Errors       int64            `json:"errors" yaml:"errors"`
	ErrorsByKind map[string]int64 `json:"errors_by_kind,omitempty" yaml:"errors_by_kind,omitempty"`
	Stragglers   int              `json:"stragglers,omitempty" yaml:"stragglers,omitempty"`
	Interrupted  bool             `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
}

// RateSummary is a rate metric with its ratio precomputed.
type RateSummary struct {
	Hits  int64   `json:"hits" yaml:"hits"`
	Total int64   `json:"total" yaml:"total"`
	Ratio float64 `json:"ratio" yaml:"ratio"`
}

// ThresholdSummary contains a summary of threshold evaluation results.
type ThresholdSummary struct {
	Total   int                   `json:"total"`
	Passed  int                   `json:"passed"`
	Failed  int                   `json:"failed"`
	Results []ThresholdResultJSON `json:"results"`
}

// ThresholdResultJSON is a JSON-friendly version of threshold.Result.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Metric    string  `json:"metric" yaml:"metric"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Observed  bool    `json:"observed" yaml:"observed"`
	Pass      bool    `json:"pass" yaml:"pass"`
}

// Metadata describes the run being reported on.
type Metadata struct {
	RunID    string
	Protocol string
	Target   string
}

// BuildReport assembles a Report from the frozen snapshot, the manager result
// and the threshold results.
func BuildReport(meta Metadata, snap metrics.Snapshot, run runner.Result, results []threshold.Result) Report {
	r := Report{
		RunID:       meta.RunID,
		GeneratedAt: time.Now().UTC(),
		Protocol:    meta.Protocol,
		Target:      meta.Target,
		Duration:    snap.Duration,
		DurationMs:  float64(snap.Duration) / float64(time.Millisecond),
		Verdict:     "pass",
		Run: RunSummary{
			Spawned:      run.Spawned,
			Retired:      run.Retired,
			StartErrors:  run.StartErrors,
			PeakVUs:      run.PeakVUs,
			Iterations:   run.Iterations,
			Errors:       run.Errors,
			ErrorsByKind: run.ErrorsByKind,
			Stragglers:   run.Stragglers,
			Interrupted:  run.Interrupted,
		},
		Counters: snap.Counters,
		Gauges:   snap.Gauges,
		Statuses: snap.Statuses,
		Rates:    make(map[string]RateSummary, len(snap.Rates)),
		Trends:   make(map[string]metrics.TrendSummary, len(snap.Trends)),
	}
	for name, v := range snap.Rates {
		r.Rates[name] = RateSummary{Hits: v.Hits, Total: v.Total, Ratio: v.Ratio()}
	}
	for _, name := range snap.TrendNames() {
		summary, _ := snap.Summary(name)
		r.Trends[name] = summary
	}
	if summary := summarizeThresholds(results); summary != nil {
		r.Thresholds = summary.Results
		if summary.Failed > 0 {
			r.Verdict = "fail"
		}
	}
	return r
}

func summarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Observed:  tr.Observed,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Protocol:          %s\n", r.Protocol)
	if r.Target != "" {
		fmt.Fprintf(w, "Target:            %s\n", r.Target)
	}
	fmt.Fprintf(w, "Duration:          %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Peak VUs:          %d\n", r.Run.PeakVUs)
	fmt.Fprintf(w, "Iterations:        %d\n", r.Run.Iterations)
	fmt.Fprintf(w, "Failed:            %d\n", r.Run.Errors)
	if r.Run.Interrupted {
		fmt.Fprintln(w, "Interrupted:       yes")
	}
	if r.Run.Stragglers > 0 {
		fmt.Fprintf(w, "Stragglers:        %d\n", r.Run.Stragglers)
	}

	if len(r.Run.ErrorsByKind) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, kind := range sortedKeys(r.Run.ErrorsByKind) {
			fmt.Fprintf(w, "  %s: %d\n", kind, r.Run.ErrorsByKind[kind])
		}
	}

	if len(r.Trends) > 0 {
		fmt.Fprintln(w, "\nTrends (ms):")
		names := sortedKeys(r.Trends)
		width := longest(names)
		for _, name := range names {
			s := r.Trends[name]
			fmt.Fprintf(w, "  %-*s  count=%d min=%.2f avg=%.2f med=%.2f p90=%.2f p95=%.2f p99=%.2f max=%.2f\n",
				width, name, s.Count, s.Min, s.Avg, s.Med, s.P90, s.P95, s.P99, s.Max)
		}
	}

	if len(r.Counters) > 0 {
		fmt.Fprintln(w, "\nCounters:")
		names := sortedKeys(r.Counters)
		width := longest(names)
		for _, name := range names {
			perSec := 0.0
			if r.Duration > 0 {
				perSec = float64(r.Counters[name]) / r.Duration.Seconds()
			}
			fmt.Fprintf(w, "  %-*s  %d (%.2f/s)\n", width, name, r.Counters[name], perSec)
		}
	}

	if len(r.Rates) > 0 {
		fmt.Fprintln(w, "\nRates:")
		names := sortedKeys(r.Rates)
		width := longest(names)
		for _, name := range names {
			v := r.Rates[name]
			fmt.Fprintf(w, "  %-*s  %.2f%% (%d of %d)\n", width, name, v.Ratio*100, v.Hits, v.Total)
		}
	}

	if len(r.Gauges) > 0 {
		fmt.Fprintln(w, "\nGauges:")
		names := sortedKeys(r.Gauges)
		width := longest(names)
		for _, name := range names {
			g := r.Gauges[name]
			fmt.Fprintf(w, "  %-*s  value=%d max=%d\n", width, name, g.Value, g.Max)
		}
	}

	if len(r.Statuses) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, r.Statuses, "  ")
	}

	if len(r.Thresholds) > 0 {
		passed := 0
		for _, t := range r.Thresholds {
			if t.Pass {
				passed++
			}
		}
		fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", passed, len(r.Thresholds))
		for _, t := range r.Thresholds {
			mark := "✓"
			if !t.Pass {
				mark = "✗"
			}
			if !t.Observed {
				fmt.Fprintf(w, "  %s %s: metric not observed\n", mark, t.Threshold)
				continue
			}
			fmt.Fprintf(w, "  %s %s: actual %.4g\n", mark, t.Threshold, t.Actual)
		}
	}

	fmt.Fprintf(w, "\nVerdict:           %s\n", strings.ToUpper(r.Verdict))
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func writeStatusBuckets(w io.Writer, rows []metrics.StatusBucket, indent string) {
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(
			w,
			"%s%s %s: %d\n",
			indent,
			strings.ToUpper(row.Protocol),
			row.Code,
			row.Count,
		)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func longest(names []string) int {
	n := 0
	for _, name := range names {
		if len(name) > n {
			n = len(name)
		}
	}
	return n
}
