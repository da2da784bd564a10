package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"credguard/internal/license"
	api "credguard/pkg/contracts/api/v1"
)

// PeerHandler answers consensus queries from other nodes
type PeerHandler struct {
	service ValidationServiceInterface
	logger  *slog.Logger
}

// NewPeerHandler creates a new peer handler
func NewPeerHandler(service ValidationServiceInterface, logger *slog.Logger) *PeerHandler {
	return &PeerHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "peer")),
	}
}

// Verify handles POST /api/v1/peer/verify. An unreadable body is a negative vote
// rather than an error so the asking node always gets a PeerVote back.
func (h *PeerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req api.PeerVerifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.WarnContext(r.Context(), "unreadable peer query",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		render.JSON(w, r, license.PeerVote{})
		return
	}
	render.JSON(w, r, h.service.VerifyForPeer(r.Context(), req))
}
