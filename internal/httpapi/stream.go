package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/lottery_engine/internal/events"
	"github.com/R3E-Network/lottery_engine/internal/httputil"
)

const (
	streamBuffer = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// eventFilter builds a filter from the room and type query parameters.
func eventFilter(r *http.Request) events.EventFilter {
	room := r.URL.Query().Get("room")
	typ := events.EventType(r.URL.Query().Get("type"))
	if room == "" && typ == "" {
		return nil
	}
	return func(e events.Event) bool {
		return (room == "" || e.Room == room) && (typ == "" || e.Type == typ)
	}
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	filter := eventFilter(r)

	// Over-fetch, then filter, so room and type can combine.
	recent := h.events.Recent(maxListLimit)
	out := make([]events.Event, 0, limit)
	for _, e := range recent {
		if filter == nil || filter(e) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// streamEvents pushes matching events to a websocket client until either
// side goes away. Events are dropped for a client that falls behind.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so the client sees every
	// event logged after its dial returns.
	queue := make(chan events.Event, streamBuffer)
	unsubscribe := h.events.SubscribeFiltered(eventFilter(r), func(e events.Event) {
		select {
		case queue <- e:
		default:
		}
	})
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e := <-queue:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
