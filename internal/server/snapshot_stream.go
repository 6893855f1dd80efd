package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/aristath/saxo-portfolio/internal/events"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const snapshotWriteTimeout = 10 * time.Second

// SnapshotSource returns the latest published snapshot
type SnapshotSource interface {
	Snapshot() *domain.Snapshot
}

// SnapshotMessage is pushed to websocket clients
type SnapshotMessage struct {
	Type string           `json:"type"`
	Data *domain.Snapshot `json:"data"`
}

// SnapshotStreamHandler pushes every published snapshot over a websocket.
// The current snapshot, if any, is sent on connect.
type SnapshotStreamHandler struct {
	eventBus *events.Bus
	source   SnapshotSource
	log      zerolog.Logger
}

// NewSnapshotStreamHandler creates a new snapshot stream handler
func NewSnapshotStreamHandler(eventBus *events.Bus, source SnapshotSource, log zerolog.Logger) *SnapshotStreamHandler {
	return &SnapshotStreamHandler{
		eventBus: eventBus,
		source:   source,
		log:      log.With().Str("component", "snapshot_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/stream (websocket upgrade)
func (h *SnapshotStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Clients only listen; CloseRead handles their control frames
	ctx := conn.CloseRead(r.Context())

	updates := make(chan struct{}, 1)
	unsubscribe := h.eventBus.Subscribe(events.SnapshotUpdated, func(*events.Event) {
		select {
		case updates <- struct{}{}:
		default:
			// A push is already pending and will carry the latest snapshot
		}
	})
	defer unsubscribe()

	h.log.Info().Msg("Client connected to snapshot stream")

	if snapshot := h.source.Snapshot(); snapshot != nil {
		if err := h.push(ctx, conn, snapshot); err != nil {
			h.logClose(err)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from snapshot stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-updates:
			if err := h.push(ctx, conn, h.source.Snapshot()); err != nil {
				h.logClose(err)
				return
			}
		}
	}
}

func (h *SnapshotStreamHandler) push(ctx context.Context, conn *websocket.Conn, snapshot *domain.Snapshot) error {
	writeCtx, cancel := context.WithTimeout(ctx, snapshotWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, SnapshotMessage{
		Type: string(events.SnapshotUpdated),
		Data: snapshot,
	})
}

func (h *SnapshotStreamHandler) logClose(err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
		h.log.Info().Msg("Client disconnected from snapshot stream")
		return
	}
	h.log.Warn().Err(err).Msg("Failed to push snapshot")
}
