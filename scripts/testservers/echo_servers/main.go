// Command echo_servers runs local targets for manual load runs: a JSON echo
// endpoint, a WebSocket echo, an SSE ticker and a gRPC chat echo.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pulsebench/pulsebench/internal/grpcclient"
)

type serverMode string

const (
	modeREST      serverMode = "rest"
	modeSSE       serverMode = "sse"
	modeWebSocket serverMode = "websocket"
	modeGRPC      serverMode = "grpc"
)

func main() {
	mode := flag.String("mode", "", "Server mode: rest, sse, websocket, grpc")
	port := flag.Int("port", 0, "Listening port")
	tick := flag.Duration("tick", 200*time.Millisecond, "SSE event interval")
	failEvery := flag.Int("fail-every", 0, "REST: answer every Nth request with 503 (0 disables)")
	protoFile := flag.String("proto", "", "gRPC: chat proto file (default: embedded chat.proto)")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	switch serverMode(*mode) {
	case modeREST:
		log.Fatal(runRESTServer(*port, *failEvery))
	case modeSSE:
		log.Fatal(runSSEServer(*port, *tick))
	case modeWebSocket:
		log.Fatal(runWebSocketServer(*port))
	case modeGRPC:
		log.Fatal(runGRPCServer(*port, *protoFile))
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func runRESTServer(port, failEvery int) error {
	var count atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		if n := count.Add(1); failEvery > 0 && n%int64(failEvery) == 0 {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "try again"})
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
		respondJSON(w, http.StatusOK, payload)
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("REST echo server listening on %s (POST /echo)", addr)
	return http.ListenAndServe(addr, mux)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func runSSEServer(port int, tick time.Duration) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		flusher.Flush()

		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for seq := 0; ; seq++ {
			select {
			case <-r.Context().Done():
				return
			case now := <-ticker.C:
				fmt.Fprintf(w, "id: %d\nevent: tick\ndata: {\"seq\": %d, \"ts\": %d}\n\n", seq, seq, now.UnixMilli())
				flusher.Flush()
			}
		}
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("SSE server listening on %s (GET /events)", addr)
	return http.ListenAndServe(addr, mux)
}

func runWebSocketServer(port int) error {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		go handleWebSocketConn(conn)
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("WebSocket echo server listening on %s (/ws)", addr)
	return http.ListenAndServe(addr, mux)
}

// handleWebSocketConn echoes every frame, so latency probes come back
// verbatim.
func handleWebSocketConn(conn *websocket.Conn) {
	defer conn.Close()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

func runGRPCServer(port int, protoFile string) error {
	schema, err := grpcclient.LoadChatSchema(protoFile, "", "")
	if err != nil {
		return err
	}

	server := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		if method != schema.FullMethod() {
			return status.Errorf(codes.Unimplemented, "method %s not supported", method)
		}
		for {
			in := schema.NewInbound()
			if err := stream.RecvMsg(in); err != nil {
				return nil
			}
			text, _ := in.TryGetFieldByName("message")
			message, _ := text.(string)
			out, err := schema.NewOutbound("server", message, time.Now())
			if err != nil {
				return err
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}))

	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("gRPC chat echo server listening on %s (%s)", addr, schema.FullMethod())
	return server.Serve(lis)
}
