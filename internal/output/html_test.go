package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateHTMLReport(t *testing.T) {
	r := testReport(t, "http_req_duration:p95 < 800", "http_req_failed:rate < 0.01")
	r.History = []Sample{
		{ElapsedSec: 1, VUs: 5, Iterations: 40, IterPerSec: 40},
		{ElapsedSec: 2, VUs: 10, Iterations: 100, IterPerSec: 60},
	}

	var buf bytes.Buffer
	if err := GenerateHTMLReport(&buf, r); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()

	requiredElements := []string{
		"<!DOCTYPE html>",
		"<title>pulsebench Load Test Report</title>",
		"Protocol: rest",
		"01TESTRUN",
		"FAIL",
		"Thresholds (1/2 Passed)",
		"http_req_duration:p95 &lt; 800",
		"Trends (ms)",
		"http_req_failed",
		"5.00% (5 of 100)",
		"Failed Opens by Status",
		"503",
		"uPlot",
		"vus-chart",
		"ips-chart",
	}
	for _, elem := range requiredElements {
		if !strings.Contains(html, elem) {
			t.Errorf("HTML missing required element: %s", elem)
		}
	}
}

func TestGenerateHTMLReport_NoHistory(t *testing.T) {
	r := testReport(t)

	var buf bytes.Buffer
	if err := GenerateHTMLReport(&buf, r); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()

	if strings.Contains(html, "Load Over Time") || strings.Contains(html, "uPlot") {
		t.Errorf("HTML should not have charts section without history")
	}
	if strings.Contains(html, "Thresholds (") {
		t.Errorf("HTML should not have thresholds section when none provided")
	}
	if !strings.Contains(html, "PASS") {
		t.Errorf("HTML missing pass verdict")
	}
}

func TestGenerateHTMLReport_UnobservedThreshold(t *testing.T) {
	r := testReport(t, "websocket_message_rtt:p95 < 500")

	var buf bytes.Buffer
	if err := GenerateHTMLReport(&buf, r); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	if !strings.Contains(buf.String(), "not observed") {
		t.Errorf("HTML should flag the unobserved metric")
	}
}

func TestGenerateHTMLReport_EscapesHTMLInData(t *testing.T) {
	r := testReport(t)
	r.Target = "http://example.test/<script>alert('xss')</script>"

	var buf bytes.Buffer
	if err := GenerateHTMLReport(&buf, r); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()

	if strings.Contains(html, "<script>alert('xss')</script>") {
		t.Errorf("HTML should escape target")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Errorf("escaped target missing")
	}
}
