package loopback

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const defaultMonitorInterval = time.Second

// Monitor serves live engine diagnostics over HTTP: a one-shot JSON
// snapshot at /snapshot and a WebSocket at /ws that streams snapshots on
// an interval until the client disconnects. It reads only the engine's
// atomic diagnostics surface and never touches the real-time path.
type Monitor struct {
	engine   *Engine
	log      *Logger
	interval time.Duration
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewMonitor creates a monitor for engine listening on addr. A zero
// interval means one snapshot per second.
func NewMonitor(engine *Engine, addr string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	m := &Monitor{
		engine:   engine,
		log:      GetGlobalLogger().WithComponent("Monitor").WithField("addr", addr),
		interval: interval,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", m.handleSnapshot)
	mux.HandleFunc("/ws", m.handleWebSocket)
	m.server = &http.Server{Addr: addr, Handler: mux}

	return m
}

// ListenAndServe blocks serving diagnostics until Shutdown is called.
// http.ErrServerClosed is swallowed; anything else comes back as a
// MONITOR_SERVE_ERROR.
func (m *Monitor) ListenAndServe() error {
	m.log.Info("Monitor listening")
	if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return WrapError(err, ErrCodeMonitorServe)
	}
	return nil
}

// Shutdown stops the HTTP server; streaming goroutines notice on their
// next write.
func (m *Monitor) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func (m *Monitor) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.engine.Snapshot()); err != nil {
		m.log.WithError(err).Warn("Snapshot encode failed")
	}
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	m.log.WithField("remote", conn.RemoteAddr().String()).Debug("Monitor client connected")

	// Drain client frames so close/ping handling works; the first read
	// error ends the stream below via closed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			m.log.Debug("Monitor client disconnected")
			return
		case <-ticker.C:
			if err := conn.WriteJSON(m.engine.Snapshot()); err != nil {
				m.log.WithError(err).Debug("Monitor write failed; dropping client")
				return
			}
		}
	}
}
