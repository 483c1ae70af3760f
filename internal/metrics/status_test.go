package metrics

import (
	"reflect"
	"testing"
)

func TestStatusTableRows(t *testing.T) {
	tests := []struct {
		name    string
		records [][2]string
		want    []StatusBucket
	}{
		{
			name: "empty",
			want: nil,
		},
		{
			name:    "single",
			records: [][2]string{{"websocket", "403"}},
			want:    []StatusBucket{{Protocol: "websocket", Code: "403", Count: 1}},
		},
		{
			name: "sorted by count then protocol then code",
			records: [][2]string{
				{"sse", "500"},
				{"websocket", "403"},
				{"websocket", "403"},
				{"http", "502"},
				{"http", "500"},
			},
			want: []StatusBucket{
				{Protocol: "websocket", Code: "403", Count: 2},
				{Protocol: "http", Code: "500", Count: 1},
				{Protocol: "http", Code: "502", Count: 1},
				{Protocol: "sse", Code: "500", Count: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			for _, r := range tt.records {
				reg.Statuses().Record(r[0], r[1])
			}
			if got := reg.Statuses().Rows(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Rows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusTableResetAndFreeze(t *testing.T) {
	reg := NewRegistry()
	reg.Statuses().Record("sse", "404")
	reg.Reset()
	if rows := reg.Statuses().Rows(); rows != nil {
		t.Fatalf("expected empty after reset, got %v", rows)
	}
	reg.Freeze()
	reg.Statuses().Record("sse", "404")
	if rows := reg.Snapshot().Statuses; rows != nil {
		t.Fatalf("expected no rows after freeze, got %v", rows)
	}
}

func TestFriendlyErrorName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"*session.HandshakeError", "Handshake rejected"},
		{"*github.com/pulsebench/pulsebench/internal/session.TransportError", "Transport failure"},
		{"*context.deadlineExceededError", "Context deadline exceeded"},
		{"*errors.errorString", "Error String"},
		{"", "Unknown error"},
		{"*tls.RecordHeaderError", "Record Header Error (tls)"},
	}
	for _, tt := range tests {
		if got := FriendlyErrorName(tt.in); got != tt.want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
