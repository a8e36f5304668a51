package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/report"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Scheme+"://"+u.Host) {
				return true
			}
		}
		return false
	}
}

// handleEventsWS streams events with seq > since, then every new event, as
// JSON text frames.
func (s *Server) handleEventsWS(allowedOrigins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}

	return func(w http.ResponseWriter, r *http.Request) {
		since, err := parseSince(r)
		if err != nil {
			http.Error(w, "bad since", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.Logger.Warn("ws_upgrade_failed", zap.Error(err))
			return
		}
		defer conn.Close()

		// subscribe before the backlog read so nothing falls in between
		ch, cancel := s.Events.Subscribe(64)
		defer cancel()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		last := since
		send := func(evs []report.Event) bool {
			for _, ev := range evs {
				if ev.Seq <= last {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					s.Logger.Debug("ws_write_failed", zap.Error(err))
					return false
				}
				last = ev.Seq
			}
			return true
		}

		if !send(s.Events.Since(last)) {
			return
		}

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				batch := []report.Event{ev}
				if ev.Seq > last+1 {
					// the subscription dropped events; replay from the buffer
					batch = s.Events.Since(last)
				}
				if !send(batch) {
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
