package realtime

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/baharkarakas/transferflow/internal/api/httpx"
	"github.com/baharkarakas/transferflow/internal/auth"
	"github.com/baharkarakas/transferflow/internal/middleware"
)

// Handler upgrades authenticated requests to a push channel. Unauthenticated
// requests are refused with 401 before any upgrade happens.
type Handler struct {
	hub      *Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(hub *Hub, verifier auth.Verifier, allowedOrigins []string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		hub:      hub,
		verifier: verifier,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
		return
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("ws upgrade failed", "owner_id", identity.ID, "err", err)
		return
	}

	c := newClient(uuid.NewString(), identity, conn, h.hub, h.log)
	h.hub.Add(c)
	go c.writePump()
	go c.readPump()
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := map[string]struct{}{}
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
