package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dot-do/entitykernel/domain/kernel"
)

const cdcPingInterval = 30 * time.Second

var cdcUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamCDC upgrades the request to a WebSocket and pushes every event the
// tenant's CDCBroker emits matching the "types"/"verbs" query filters,
// sending a ping control frame every cdcPingInterval whether or not events
// have arrived. This is the optional long-lived push transport alongside the
// pull-based PollCDC handler; clients that drop a connection simply resume
// with PollCDC's cursor.
func (h *handler) StreamCDC(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := kernel.CDCFilter{}
	if types := r.URL.Query().Get("types"); types != "" {
		filter.Types = strings.Split(types, ",")
	}
	if verbs := r.URL.Query().Get("verbs"); verbs != "" {
		filter.Verbs = strings.Split(verbs, ",")
	}

	conn, err := cdcUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := t.Push.Subscribe(filter)
	defer unsubscribe()

	ticker := time.NewTicker(cdcPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
