// Package watch exposes the presence registry over HTTP: the current active
// set as JSON and a live stream of join/leave events over Server-Sent Events
// or WebSocket.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirkobrombin/go-presence/v1/syncbus"
)

// Roster answers active set queries.
type Roster interface {
	Active(ctx context.Context) ([]string, error)
}

// RosterResponse is the body served by RosterHandler.
type RosterResponse struct {
	Count   int      `json:"count"`
	Workers []string `json:"workers"`
}

// RosterHandler serves the active set as JSON. Store failures map to 503.
func RosterHandler(roster Roster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := roster.Active(r.Context())
		if err != nil {
			slog.Warn("presence: roster lookup failed", "error", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if active == nil {
			active = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RosterResponse{Count: len(active), Workers: active})
	}
}

// matches reports whether ev passes the optional "name" query filter.
func matches(r *http.Request, ev syncbus.Event) bool {
	name := r.URL.Query().Get("name")
	return name == "" || name == ev.Name
}

// SSEHandler streams presence events over Server-Sent Events. An optional
// "name" query parameter restricts the stream to one worker.
func SSEHandler(bus syncbus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		ch, err := bus.Subscribe(ctx)
		if err != nil {
			cancel()
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer func() {
			cancel()
			_ = bus.Unsubscribe(context.Background(), ch)
		}()
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if !matches(r, ev) {
					continue
				}
				data, err := json.Marshal(ev)
				if err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
					return
				}
				flusher.Flush()
			case <-ctx.Done():
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{}

// WebSocketHandler streams presence events over WebSocket as JSON text
// messages. An optional "name" query parameter restricts the stream to one
// worker.
func WebSocketHandler(bus syncbus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ctx, cancel := context.WithCancel(r.Context())
		ch, err := bus.Subscribe(ctx)
		if err != nil {
			cancel()
			return
		}
		defer func() {
			cancel()
			_ = bus.Unsubscribe(context.Background(), ch)
		}()
		// reader goroutine notices the client going away
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if !matches(r, ev) {
					continue
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// NewMux mounts the roster, the event streams and, when gatherer is not nil,
// Prometheus metrics:
//
//	GET /workers  active set
//	GET /events   SSE stream
//	GET /ws       WebSocket stream
//	GET /metrics  Prometheus exposition
func NewMux(roster Roster, bus syncbus.Bus, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /workers", RosterHandler(roster))
	mux.Handle("GET /events", SSEHandler(bus))
	mux.Handle("GET /ws", WebSocketHandler(bus))
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
