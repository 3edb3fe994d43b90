package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/cryptocrystian/pravado/internal/common"
	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const writeTimeout = 5 * time.Second

// WebSocketHandler streams run events to connected clients. Each connection
// subscribes to exactly one run; high-frequency event types are throttled
// per connection so a chatty step cannot flood the socket.
type WebSocketHandler struct {
	events            interfaces.EventService
	logger            arbor.ILogger
	throttleIntervals map[string]time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		events:            events,
		logger:            logger,
		throttleIntervals: make(map[string]time.Duration),
	}

	if config != nil {
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval, throttling disabled for event type")
				continue
			}
			h.throttleIntervals[eventType] = duration
			logger.Debug().
				Str("event_type", eventType).
				Str("interval", intervalStr).
				Msg("Throttler configured for event type")
		}
	}

	return h
}

// HandleWebSocket handles GET /ws?run_id={id}. The connection receives
// every event published for the run until the client disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Debug().Str("run_id", runID).Msg("WebSocket client connected")

	// Per-connection state: one write mutex, one limiter per throttled type
	var writeMu sync.Mutex
	limiters := make(map[string]*rate.Limiter, len(h.throttleIntervals))
	for eventType, interval := range h.throttleIntervals {
		limiters[eventType] = rate.NewLimiter(rate.Every(interval), 1)
	}

	unsubscribe := h.events.Subscribe(runID, func(event models.RunEvent) {
		if limiter, ok := limiters[string(event.Type)]; ok && !limiter.Allow() {
			return
		}

		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to marshal run event")
			return
		}

		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug().Err(err).Str("run_id", runID).Msg("Failed to write run event to client")
		}
	})
	defer unsubscribe()

	// Block on the read loop to detect disconnect; inbound messages are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.logger.Debug().Str("run_id", runID).Msg("WebSocket client disconnected")
}
