package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/session"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "http_req_duration", "failed_connections"
	Aggregate string  // e.g., "p95", "avg", "count", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "==", "!="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Condition renders the aggregate, operator and value, e.g. "p95 < 800".
func (t Threshold) Condition() string {
	return fmt.Sprintf("%s %s %s", t.Aggregate, t.Operator, strconv.FormatFloat(t.Value, 'f', -1, 64))
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Observed  bool // false when the metric had nothing to aggregate
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a frozen metrics snapshot.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against snap. A rule whose metric was never
// registered, or whose trend has no samples, fails.
func (e *Evaluator) Evaluate(snap metrics.Snapshot) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, snap))
	}
	return results
}

func evaluateOne(t Threshold, snap metrics.Snapshot) Result {
	actual, err := extractMetricValue(t, snap)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Observed:  true,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %s %s %s", status, t.Raw, formatValue(actual), t.Operator, formatValue(t.Value)),
	}
}

// Verdict reduces results to the run verdict: nil when every rule passed,
// otherwise a *session.ThresholdViolation naming the failed rules.
func Verdict(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Pass {
			failed = append(failed, r.Threshold.Raw)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &session.ThresholdViolation{Failed: failed}
}

var thresholdPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\s*:\s*([a-z]+[0-9.]*)\s*(<=|>=|==|!=|<|>)\s*(\S+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "http_req_duration:p95 < 800"       (percentile of a trend, in ms)
// - "time_to_first_message:avg < 200"   (avg, min, max or med of a trend)
// - "http_req_failed:rate < 0.001"      (ratio of a rate metric)
// - "failed_connections:count == 0"     (counter total, rate or trend sample count)
// - "http_reqs:rate > 100"              (counter events per second)
// - "vus:value <= 50"                   (final value of a gauge or counter)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'http_req_duration:p95 < 800')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Threshold{}, fmt.Errorf("invalid threshold value %q", valueStr)
	}

	if !isValidAggregate(aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: pNN, avg, min, max, med, count, rate, value)", aggregate)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func isValidAggregate(aggregate string) bool {
	if _, ok := percentileOf(aggregate); ok {
		return true
	}
	switch aggregate {
	case "avg", "mean", "min", "max", "med", "count", "rate", "value":
		return true
	}
	return false
}

// percentileOf parses "p95" or "p99.9".
func percentileOf(aggregate string) (float64, bool) {
	if !strings.HasPrefix(aggregate, "p") || len(aggregate) < 2 {
		return 0, false
	}
	p, err := strconv.ParseFloat(aggregate[1:], 64)
	if err != nil || p < 0 || p > 100 {
		return 0, false
	}
	return p, true
}

func extractMetricValue(t Threshold, snap metrics.Snapshot) (float64, error) {
	if !snap.Has(t.Metric) {
		return 0, fmt.Errorf("metric %q was never observed", t.Metric)
	}

	switch t.Aggregate {
	case "count":
		n, _ := snap.Count(t.Metric)
		return float64(n), nil
	case "rate":
		v, ok := snap.Rate(t.Metric)
		if !ok {
			return 0, fmt.Errorf("rate %q has no samples", t.Metric)
		}
		return v, nil
	case "value":
		if g, ok := snap.Gauges[t.Metric]; ok {
			return float64(g.Value), nil
		}
		if v, ok := snap.Rates[t.Metric]; ok {
			if v.Total == 0 {
				return 0, fmt.Errorf("rate %q has no samples", t.Metric)
			}
			return v.Ratio(), nil
		}
		if n, ok := snap.Counters[t.Metric]; ok {
			return float64(n), nil
		}
		return 0, fmt.Errorf("aggregate %q is not defined for trend %q", t.Aggregate, t.Metric)
	case "max":
		if g, ok := snap.Gauges[t.Metric]; ok {
			return float64(g.Max), nil
		}
	}

	return extractTrendValue(t, snap)
}

func extractTrendValue(t Threshold, snap metrics.Snapshot) (float64, error) {
	if _, ok := snap.Trends[t.Metric]; !ok {
		return 0, fmt.Errorf("aggregate %q needs a trend, %q is not one", t.Aggregate, t.Metric)
	}
	summary, ok := snap.Summary(t.Metric)
	if !ok {
		return 0, fmt.Errorf("trend %q has no samples", t.Metric)
	}

	if p, ok := percentileOf(t.Aggregate); ok {
		v, _ := snap.Percentile(t.Metric, p)
		return v, nil
	}
	switch t.Aggregate {
	case "avg", "mean":
		return summary.Avg, nil
	case "min":
		return summary.Min, nil
	case "max":
		return summary.Max, nil
	case "med":
		return summary.Med, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	case "!=":
		return math.Abs(actual-expected) >= epsilon
	default:
		return false
	}
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
