package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/runner"
)

func newTestDashboard(cfg TestConfig) *Dashboard {
	d := &Dashboard{
		testConfig:     cfg,
		startTime:      time.Unix(0, 0),
		lastUpdateTime: time.Unix(0, 0),
	}
	d.initWidgets()
	return d
}

func TestReadState(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Gauge(runner.MetricVUs).Set(3)
	reg.Gauge(runner.MetricVUsMax).Set(10)
	reg.Counter(runner.MetricIterations).Add(40)
	reg.Counter(runner.MetricFailedIterations).Add(4)
	reg.Counter("failed_connections").Add(2)
	reg.Rate("http_req_failed").Add(true)
	reg.Rate("http_req_failed").Add(false)
	for i := 1; i <= 10; i++ {
		reg.Trend("websocket_message_rtt").Add(float64(i))
	}
	reg.Trend("time_to_first_message").Add(500)
	reg.Statuses().Record("websocket", "403")

	s := readState(reg, "websocket_message_rtt")

	if s.VUs != 3 || s.VUsMax != 10 {
		t.Errorf("vus = %d/%d", s.VUs, s.VUsMax)
	}
	if s.Iterations != 40 || s.Failed != 4 {
		t.Errorf("iterations = %d failed = %d", s.Iterations, s.Failed)
	}
	if s.Counters["failed_connections"] != 2 {
		t.Errorf("counters = %v", s.Counters)
	}
	if r := s.Rates["http_req_failed"]; r.Hits != 1 || r.Total != 2 {
		t.Errorf("rate = %+v", r)
	}
	if s.Latency.Count != 10 || s.Latency.Max > 10.1 {
		t.Errorf("latency should come from the chosen trend, got %+v", s.Latency)
	}
	if len(s.Statuses) != 1 || s.Statuses[0].Code != "403" {
		t.Errorf("statuses = %v", s.Statuses)
	}
}

func TestApply(t *testing.T) {
	d := newTestDashboard(TestConfig{TargetURL: "ws://example.test", Protocol: "websocket", LatencyMetric: "websocket_message_rtt"})

	d.apply(liveState{
		VUs:        5,
		VUsMax:     10,
		Iterations: 100,
		Failed:     10,
		Counters:   map[string]int64{"iterations": 100},
		Latency:    metrics.LiveStats{Count: 4, Min: 1, Mean: 2, P50: 2, P90: 3, P95: 3, P99: 4, Max: 4},
	}, time.Unix(10, 0))

	if d.vuGauge.Percent != 50 || d.vuGauge.Label != "5 / 10 VUs" {
		t.Errorf("gauge = %d%% %q", d.vuGauge.Percent, d.vuGauge.Label)
	}
	if !strings.Contains(d.summaryPara.Text, "ws://example.test") || !strings.Contains(d.summaryPara.Text, "Failed: 10.0%") {
		t.Errorf("summary = %q", d.summaryPara.Text)
	}
	if !strings.Contains(d.metricsPara.Text, "Iterations/sec:    10.00") {
		t.Errorf("metrics = %q", d.metricsPara.Text)
	}
	if len(d.latencyHistory) != 1 || d.latencyHistory[0] != 2 {
		t.Errorf("latency history = %v", d.latencyHistory)
	}
	if !strings.HasPrefix(d.latencySparkle.Title, "websocket_message_rtt | P50: 2.00ms") {
		t.Errorf("sparkline title = %q", d.latencySparkle.Title)
	}
	if !strings.Contains(d.latencyPara.Text, "P95:  3.00ms") {
		t.Errorf("latency text = %q", d.latencyPara.Text)
	}
	if d.statusList.Rows[0] != "[No failures](fg:green)" {
		t.Errorf("status rows = %v", d.statusList.Rows)
	}
}

func TestApplyWithoutPeak(t *testing.T) {
	d := newTestDashboard(TestConfig{})
	d.apply(liveState{VUs: 0}, time.Unix(1, 0))
	if d.vuGauge.Percent != 0 {
		t.Errorf("gauge percent = %d", d.vuGauge.Percent)
	}
	if d.latencyPara.Text != "No samples yet" {
		t.Errorf("latency text = %q", d.latencyPara.Text)
	}
}

func TestFormatCounterRows(t *testing.T) {
	rows := formatCounterRows(
		map[string]int64{"reconnects": 3, "failed_connections": 1},
		map[string]metrics.RateValue{"http_req_failed": {Hits: 1, Total: 4}},
	)
	want := []string{
		"[failed_connections](fg:cyan) 1",
		"[reconnects](fg:cyan) 3",
		"[http_req_failed](fg:cyan) 25.00% (1/4)",
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %q, want %q", i, rows[i], want[i])
		}
	}

	if rows := formatCounterRows(nil, nil); !strings.Contains(rows[0], "No counters yet") {
		t.Errorf("empty rows = %v", rows)
	}
}

func TestFormatStatusListRows(t *testing.T) {
	rows := formatStatusListRows([]metrics.StatusBucket{
		{Protocol: "http", Code: "404", Count: 3},
		{Protocol: "sse", Code: "transport", Count: 1},
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !strings.Contains(rows[0], "HTTP 404") {
		t.Fatalf("expected HTTP protocol in formatted row, got %s", rows[0])
	}

	many := make([]metrics.StatusBucket, 15)
	for i := range many {
		many[i] = metrics.StatusBucket{Protocol: "grpc", Code: "UNAVAILABLE", Count: 1}
	}
	if rows := formatStatusListRows(many); len(rows) != 10 {
		t.Errorf("expected rows capped at 10, got %d", len(rows))
	}
}

func TestFormatTestParams(t *testing.T) {
	tests := []struct {
		name     string
		config   TestConfig
		contains []string
		excludes []string
	}{
		{
			name:     "unpaced",
			config:   TestConfig{Protocol: "rest"},
			contains: []string{"Protocol: rest", "Rate: unpaced"},
			excludes: []string{"Preset", "Config"},
		},
		{
			name: "stages and peak",
			config: TestConfig{
				Stages:  []runner.Stage{{Duration: 20 * time.Second, Target: 100}, {Duration: 10 * time.Second, Target: 0}},
				PeakVUs: 100,
			},
			contains: []string{"Stages: 20s:100,10s:0", "Peak VUs: 100"},
		},
		{
			name:     "paced with default arrival",
			config:   TestConfig{Rate: 2.5},
			contains: []string{"Rate: 2.5/s per VU (uniform)"},
		},
		{
			name:     "poisson arrival",
			config:   TestConfig{Rate: 1, Arrival: "poisson"},
			contains: []string{"(poisson)"},
		},
		{
			name:     "preset and config file",
			config:   TestConfig{Preset: "websocket", ConfigFile: "load.yaml"},
			contains: []string{"Preset: websocket", "Config: load.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Dashboard{testConfig: tt.config}
			result := d.formatTestParams()

			for _, s := range tt.contains {
				if !strings.Contains(result, s) {
					t.Errorf("expected result to contain %q, got %q", s, result)
				}
			}

			for _, s := range tt.excludes {
				if strings.Contains(result, s) {
					t.Errorf("expected result NOT to contain %q, got %q", s, result)
				}
			}
		})
	}
}
