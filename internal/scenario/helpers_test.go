package scenario

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/pulsebench/pulsebench/internal/metrics"
)

func newWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func snapshot(reg *metrics.Registry) metrics.Snapshot {
	reg.Freeze()
	return reg.Snapshot()
}

func count(t *testing.T, snap metrics.Snapshot, name string) int64 {
	t.Helper()
	v, ok := snap.Count(name)
	if !ok {
		t.Fatalf("metric %s was not registered", name)
	}
	return v
}
