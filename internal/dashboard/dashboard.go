package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/runner"
)

// TestConfig holds load test configuration parameters for display.
type TestConfig struct {
	TargetURL     string         // Full target URL
	Protocol      string         // rest, websocket, sse or grpc
	Preset        string         // Preset name if one was loaded
	Stages        []runner.Stage // Ramp plan
	PeakVUs       int            // Highest stage target
	Rate          float64        // Per-VU iterations per second (0 = unpaced)
	Arrival       string         // Arrival model for paced runs
	ConfigFile    string         // Path to config file if used
	LatencyMetric string         // Trend shown in the sparkline
}

// Dashboard renders a live terminal UI for load test metrics.
type Dashboard struct {
	registry     *metrics.Registry
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	vuGauge        *widgets.Gauge
	statusList     *widgets.List
	counterList    *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	latencyHistory []float64
	lastIterations int64
	lastUpdateTime time.Time
	startTime      time.Time
	testConfig     TestConfig
}

// liveState is one read of the registry while the run is in progress.
type liveState struct {
	VUs        int64
	VUsMax     int64
	Iterations int64
	Failed     int64
	Counters   map[string]int64
	Rates      map[string]metrics.RateValue
	Latency    metrics.LiveStats
	Statuses   []metrics.StatusBucket
}

// New creates a new Dashboard.
func New(registry *metrics.Registry, cfg TestConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		registry:       registry,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		lastUpdateTime: time.Now(),
		testConfig:     cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "P50 (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = latencyTitle(d.testConfig.LatencyMetric)
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "No samples yet"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.vuGauge = widgets.NewGauge()
	d.vuGauge.Title = "Virtual Users"
	d.vuGauge.Percent = 0
	d.vuGauge.BarColor = ui.ColorBlue
	d.vuGauge.BorderStyle.Fg = ui.ColorCyan
	d.vuGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.statusList = widgets.NewList()
	d.statusList.Title = "Failed Opens"
	d.statusList.Rows = []string{"No failures"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.counterList = widgets.NewList()
	d.counterList.Title = "Counters and Rates"
	d.counterList.Rows = []string{"Awaiting data"}
	d.counterList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.counterList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Test Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Iterations"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.18,
			ui.NewCol(0.5, d.vuGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.38,
			ui.NewCol(0.5, d.counterList),
			ui.NewCol(0.5, d.statusList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and cleans up.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// Run starts the dashboard and blocks until ctx is done.
func (d *Dashboard) Run(ctx context.Context) error {
	d.Start()
	<-ctx.Done()
	d.Stop()
	return nil
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Do not return here; wait for Stop() to cancel context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(time.Now())
			d.render()
		}
	}
}

// readState samples every metric in the registry.
func readState(reg *metrics.Registry, latencyMetric string) liveState {
	s := liveState{
		Counters: make(map[string]int64),
		Rates:    make(map[string]metrics.RateValue),
		Statuses: reg.Statuses().Rows(),
	}
	reg.Each(func(m metrics.Metric) {
		switch v := m.(type) {
		case *metrics.Counter:
			s.Counters[v.Name()] = v.Value()
		case *metrics.Rate:
			hits, total := v.Value()
			s.Rates[v.Name()] = metrics.RateValue{Hits: hits, Total: total}
		case *metrics.Gauge:
			cur, _ := v.Value()
			switch v.Name() {
			case runner.MetricVUs:
				s.VUs = cur
			case runner.MetricVUsMax:
				s.VUsMax = cur
			}
		case *metrics.Trend:
			if v.Name() == latencyMetric {
				s.Latency = v.Live()
			}
		}
	})
	s.Iterations = s.Counters[runner.MetricIterations]
	s.Failed = s.Counters[runner.MetricFailedIterations]
	return s
}

// update refreshes all widget data from the registry.
func (d *Dashboard) update(now time.Time) {
	state := readState(d.registry, d.testConfig.LatencyMetric)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.apply(state, now)
}

func (d *Dashboard) apply(state liveState, now time.Time) {
	elapsed := now.Sub(d.startTime)

	if state.Latency.Count > 0 {
		d.latencyHistory = append(d.latencyHistory, state.Latency.P50)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"%s | P50: %.2fms | Min: %.2fms | Max: %.2fms",
			latencyTitle(d.testConfig.LatencyMetric),
			state.Latency.P50,
			state.Latency.Min,
			state.Latency.Max,
		)
		d.latencyPara.Text = fmt.Sprintf(
			"Count: %d\nMin:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP95:  %.2fms\nP99:  %.2fms",
			state.Latency.Count,
			state.Latency.Min,
			state.Latency.Mean,
			state.Latency.P50,
			state.Latency.P90,
			state.Latency.P95,
			state.Latency.P99,
		)
	}

	peak := state.VUsMax
	if peak < state.VUs {
		peak = state.VUs
	}
	percent := 0
	if peak > 0 {
		percent = int(state.VUs * 100 / peak)
	}
	d.vuGauge.Percent = percent
	d.vuGauge.Label = fmt.Sprintf("%d / %d VUs", state.VUs, peak)

	iterRate := 0.0
	if dt := now.Sub(d.lastUpdateTime).Seconds(); dt > 0 {
		iterRate = float64(state.Iterations-d.lastIterations) / dt
	}
	d.lastIterations = state.Iterations
	d.lastUpdateTime = now

	failRate := 0.0
	if state.Iterations > 0 {
		failRate = float64(state.Failed) / float64(state.Iterations) * 100
	}

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Iterations: %d | Failed: %.1f%%",
		d.testConfig.TargetURL,
		d.formatTestParams(),
		elapsed.Round(time.Second),
		state.Iterations,
		failRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Iterations:        %d\nFailed:            %d\nIterations/sec:    %.2f\nActive VUs:        %d",
		state.Iterations,
		state.Failed,
		iterRate,
		state.VUs,
	)

	d.counterList.Rows = formatCounterRows(state.Counters, state.Rates)
	d.statusList.Rows = formatStatusListRows(state.Statuses)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func latencyTitle(metric string) string {
	if metric == "" {
		return "Latency"
	}
	return metric
}

func formatCounterRows(counters map[string]int64, rates map[string]metrics.RateValue) []string {
	if len(counters) == 0 && len(rates) == 0 {
		return []string{"[No counters yet](fg:green)"}
	}
	rows := make([]string, 0, len(counters)+len(rates))
	for _, name := range sortedNames(counters) {
		rows = append(rows, fmt.Sprintf("[%s](fg:cyan) %d", name, counters[name]))
	}
	for _, name := range sortedNames(rates) {
		r := rates[name]
		rows = append(rows, fmt.Sprintf("[%s](fg:cyan) %.2f%% (%d/%d)", name, r.Ratio()*100, r.Hits, r.Total))
	}
	return rows
}

func formatStatusListRows(rows []metrics.StatusBucket) []string {
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	maxRows := len(rows)
	if maxRows > 10 {
		maxRows = 10
	}
	formatted := make([]string, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		row := rows[i]
		formatted = append(formatted, fmt.Sprintf("[%s %s](fg:red) %d", strings.ToUpper(row.Protocol), row.Code, row.Count))
	}
	return formatted
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// formatTestParams formats the test configuration parameters for display.
func (d *Dashboard) formatTestParams() string {
	var parts []string

	if d.testConfig.Protocol != "" {
		parts = append(parts, fmt.Sprintf("Protocol: %s", d.testConfig.Protocol))
	}

	if d.testConfig.Preset != "" {
		parts = append(parts, fmt.Sprintf("Preset: %s", d.testConfig.Preset))
	}

	if len(d.testConfig.Stages) > 0 {
		stages := make([]string, len(d.testConfig.Stages))
		for i, s := range d.testConfig.Stages {
			stages[i] = s.String()
		}
		parts = append(parts, fmt.Sprintf("Stages: %s", strings.Join(stages, ",")))
	}

	if d.testConfig.PeakVUs > 0 {
		parts = append(parts, fmt.Sprintf("Peak VUs: %d", d.testConfig.PeakVUs))
	}

	if d.testConfig.Rate > 0 {
		arrival := d.testConfig.Arrival
		if arrival == "" {
			arrival = "uniform"
		}
		parts = append(parts, fmt.Sprintf("Rate: %g/s per VU (%s)", d.testConfig.Rate, arrival))
	} else {
		parts = append(parts, "Rate: unpaced")
	}

	if d.testConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.testConfig.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
