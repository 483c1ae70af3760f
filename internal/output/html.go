package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/pulsebench/pulsebench/internal/metrics"
)

// htmlReportData is what the HTML template renders.
type htmlReportData struct {
	Report      Report
	GeneratedAt string
	Summary     *ThresholdSummary
	Counters    []string
	Rates       []string
	Gauges      []string
	Trends      []string
	HistoryJSON string
}

// GenerateHTMLReport renders r as a standalone HTML page. When r.History is
// set the page embeds VU and iteration charts.
func GenerateHTMLReport(w io.Writer, r Report) error {
	var summary *ThresholdSummary
	if len(r.Thresholds) > 0 {
		summary = &ThresholdSummary{Total: len(r.Thresholds), Results: r.Thresholds}
		for _, t := range r.Thresholds {
			if t.Pass {
				summary.Passed++
			} else {
				summary.Failed++
			}
		}
	}

	historyJSON, err := json.Marshal(r.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	data := htmlReportData{
		Report:      r,
		GeneratedAt: r.GeneratedAt.Format(time.RFC3339),
		Summary:     summary,
		Counters:    sortedKeys(r.Counters),
		Rates:       sortedKeys(r.Rates),
		Gauges:      sortedKeys(r.Gauges),
		Trends:      sortedKeys(r.Trends),
		HistoryJSON: string(historyJSON),
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(ratio float64) string {
			return fmt.Sprintf("%.2f", ratio*100)
		},
		"trend": func(name string) metrics.TrendSummary {
			return r.Trends[name]
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>pulsebench Load Test Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f4f6f8;
            color: #1f2933;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #0f766e 0%, #1e3a8a 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #0f766e;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
        }
        .card.success {
            border-left-color: #10b981;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart {
            width: 100%;
            height: 300px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            text-align: left;
            padding: 10px 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.85rem;
            text-transform: uppercase;
        }
        td.num {
            font-variant-numeric: tabular-nums;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
    </style>
    {{if .Report.History}}
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
    {{end}}
</head>
<body>
    <div class="container">
        <header>
            <h1>pulsebench Load Test Report</h1>
            <div class="meta">Protocol: {{.Report.Protocol}}{{if .Report.Target}} | Target: {{.Report.Target}}{{end}}</div>
            <div class="meta">{{if .Report.RunID}}Run {{.Report.RunID}} | {{end}}Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Report.Duration}}</div>
        </header>

        <div class="content">
            <div class="grid">
                {{if eq .Report.Verdict "pass"}}
                <div class="card success">
                    <h3>Verdict</h3>
                    <div class="value">PASS</div>
                </div>
                {{else}}
                <div class="card error">
                    <h3>Verdict</h3>
                    <div class="value">FAIL</div>
                </div>
                {{end}}
                <div class="card">
                    <h3>Peak VUs</h3>
                    <div class="value">{{.Report.Run.PeakVUs}}</div>
                </div>
                <div class="card">
                    <h3>Iterations</h3>
                    <div class="value">{{.Report.Run.Iterations}}</div>
                </div>
                <div class="card error">
                    <h3>Failed Iterations</h3>
                    <div class="value">{{.Report.Run.Errors}}</div>
                </div>
            </div>

            {{if .Report.History}}
            <div class="section">
                <h2>Load Over Time</h2>
                <div class="chart-container">
                    <div id="vus-chart" class="chart"></div>
                </div>
                <div class="chart-container">
                    <div id="ips-chart" class="chart"></div>
                </div>
            </div>
            {{end}}

            {{if .Summary}}
            <div class="section">
                <h2>Thresholds ({{.Summary.Passed}}/{{.Summary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr><th>Threshold</th><th>Metric</th><th>Expected</th><th>Actual</th><th>Status</th></tr>
                    </thead>
                    <tbody>
                        {{range .Summary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td class="num">{{if .Observed}}{{formatFloat .Actual}}{{else}}not observed{{end}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Trends}}
            <div class="section">
                <h2>Trends (ms)</h2>
                <table>
                    <thead>
                        <tr><th>Metric</th><th>Count</th><th>Min</th><th>Avg</th><th>Med</th><th>P90</th><th>P95</th><th>P99</th><th>Max</th></tr>
                    </thead>
                    <tbody>
                        {{range .Trends}}
                        {{$t := trend .}}
                        <tr>
                            <td><strong>{{.}}</strong></td>
                            <td class="num">{{$t.Count}}</td>
                            <td class="num">{{formatFloat $t.Min}}</td>
                            <td class="num">{{formatFloat $t.Avg}}</td>
                            <td class="num">{{formatFloat $t.Med}}</td>
                            <td class="num">{{formatFloat $t.P90}}</td>
                            <td class="num">{{formatFloat $t.P95}}</td>
                            <td class="num">{{formatFloat $t.P99}}</td>
                            <td class="num">{{formatFloat $t.Max}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if or .Counters .Rates .Gauges}}
            <div class="section">
                <h2>Counters, Rates and Gauges</h2>
                <table>
                    <thead>
                        <tr><th>Metric</th><th>Kind</th><th>Value</th></tr>
                    </thead>
                    <tbody>
                        {{range .Counters}}
                        <tr><td>{{.}}</td><td>counter</td><td class="num">{{index $.Report.Counters .}}</td></tr>
                        {{end}}
                        {{range .Rates}}
                        {{$r := index $.Report.Rates .}}
                        <tr><td>{{.}}</td><td>rate</td><td class="num">{{formatPercent $r.Ratio}}% ({{$r.Hits}} of {{$r.Total}})</td></tr>
                        {{end}}
                        {{range .Gauges}}
                        {{$g := index $.Report.Gauges .}}
                        <tr><td>{{.}}</td><td>gauge</td><td class="num">{{$g.Value}} (max {{$g.Max}})</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.Statuses}}
            <div class="section">
                <h2>Failed Opens by Status</h2>
                <table>
                    <thead>
                        <tr><th>Protocol</th><th>Status</th><th>Count</th></tr>
                    </thead>
                    <tbody>
                        {{range .Report.Statuses}}
                        <tr><td>{{.Protocol}}</td><td>{{.Code}}</td><td class="num">{{.Count}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .Report.History}}
    <script>
        const history = JSON.parse({{.HistoryJSON}});
        if (history && history.length > 0) {
            const t = history.map(d => d.t);
            const opts = (title, label, stroke) => ({
                title: title,
                width: document.getElementById('vus-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { label: label, stroke: stroke, width: 2 }
                ],
                axes: [
                    { label: "Time (seconds)" },
                    { label: label }
                ]
            });
            new uPlot(opts("Active VUs", "VUs", "#0f766e"), [t, history.map(d => d.vus)], document.getElementById('vus-chart'));
            new uPlot(opts("Iterations Per Second", "Iter/s", "#1e3a8a"), [t, history.map(d => d.ips)], document.getElementById('ips-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
