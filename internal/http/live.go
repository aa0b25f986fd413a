package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	applog "opsconsole/internal/log"
	"opsconsole/internal/view"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// liveMessage is pushed to websocket clients whenever their view changes.
type liveMessage struct {
	Action  string       `json:"action"`
	Summary viewSummary  `json:"summary"`
	Records []recordJSON `json:"records,omitempty"`
}

// handleLive streams a view's snapshots over a websocket. With
// ?records=1 every message carries the full record list, otherwise only
// the summary.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("view")
	def, ok := s.opts.Views.Definition(name)
	if !ok {
		NotFoundError("unknown view " + name).Write(w)
		return
	}
	withRecords := r.URL.Query().Get("records") == "1"

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Websocket upgrade failed", applog.FieldError, err)
		return
	}
	defer ws.Close()

	snaps, cancel, err := s.opts.Views.Watch(name)
	if err != nil {
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer cancel()

	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentLive).With(applog.FieldView, name)
	logger.InfoContext(r.Context(), "Live client connected")

	// The read loop only exists to notice the client going away and to
	// process pongs.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(livePongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := s.sendSnapshot(ws, def, snap, withRecords); err != nil {
				logger.DebugContext(r.Context(), "Live write failed", applog.FieldError, err)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case <-gone:
			logger.InfoContext(r.Context(), "Live client disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) sendSnapshot(ws *websocket.Conn, def view.Definition, snap view.Snapshot, withRecords bool) error {
	msg := liveMessage{Action: "snapshot", Summary: summarize(def, snap)}
	if withRecords {
		msg.Records = make([]recordJSON, len(snap.Records))
		for i, rec := range snap.Records {
			msg.Records[i] = toRecordJSON(rec)
		}
	}
	_ = ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return ws.WriteJSON(msg)
}
