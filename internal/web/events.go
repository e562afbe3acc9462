// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatehouse/gatehouse/internal/session"
)

// stateEvent is the payload of each "session" event.
type stateEvent struct {
	Event  string    `json:"event,omitempty"`
	Status string    `json:"status"`
	Email  string    `json:"email,omitempty"`
	At     time.Time `json:"at"`
}

func newStateEvent(event session.Event, st session.State, at time.Time) stateEvent {
	return stateEvent{
		Event:  string(event),
		Status: st.Status.String(),
		Email:  st.Identity.Email,
		At:     at.UTC(),
	}
}

// handleEvents streams the browser session's state changes as server-sent
// events until the client goes away or the server stops.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r.Context())
	rc := http.NewResponseController(w)

	changes := make(chan session.Change, 8)
	unsubscribe := b.provider.Subscribe(func(c session.Change) {
		select {
		case changes <- c:
		default:
			s.logger.WarnContext(r.Context(), "event stream lagging, change dropped",
				"session_id", b.id.String(), "event", string(c.Event))
		}
	})
	defer unsubscribe()

	eventStreams.Inc()
	defer eventStreams.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, newStateEvent("", b.provider.State(), time.Now())); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.baseCtx.Done():
			return
		case c := <-changes:
			if err := writeEvent(w, newStateEvent(c.Event, c.Current, c.At)); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, ev stateEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: session\ndata: %s\n\n", data)
	return err
}
