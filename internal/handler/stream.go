package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"courier/internal/logging"
	"courier/internal/service"
)

// StreamHandler pushes offer snapshots to the device UI over a websocket.
type StreamHandler struct {
	authority *service.AssignmentService
	log       logging.Logger
	upgrader  websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(authority *service.AssignmentService, log logging.Logger) *StreamHandler {
	return &StreamHandler{
		authority: authority,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The agent serves the on-device UI only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// streamFrame is one message on the snapshot stream.
type streamFrame struct {
	Held  bool           `json:"held"`
	Offer *OfferResponse `json:"offer,omitempty"`
}

func toStreamFrame(snap service.Snapshot) streamFrame {
	frame := streamFrame{Held: snap.Held}
	if snap.Held {
		resp := toOfferResponse(snap.Offer, time.Now())
		frame.Offer = &resp
	}
	return frame
}

// Stream handles GET /v1/offer/stream. The current snapshot is sent on
// connect, then one frame per committed transition.
func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.authority.Subscribe()
	defer cancel()

	if err := conn.WriteJSON(toStreamFrame(h.authority.Snapshot())); err != nil {
		return
	}

	// Drain reads so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for snap := range updates {
		if err := conn.WriteJSON(toStreamFrame(snap)); err != nil {
			h.log.Debug("snapshot stream closed", logging.Error(err))
			return
		}
	}
}
