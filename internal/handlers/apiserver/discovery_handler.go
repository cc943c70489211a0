package apiserver

import (
	"log"
	"net/http"

	"moodlink/internal/middleware"
	"moodlink/internal/services"
)

// DiscoveryHandler handles HTTP requests for the peer directory.
type DiscoveryHandler struct {
	discoveryService services.DiscoveryService
}

// NewDiscoveryHandler creates a new DiscoveryHandler.
func NewDiscoveryHandler(ds services.DiscoveryService) *DiscoveryHandler {
	return &DiscoveryHandler{discoveryService: ds}
}

// DiscoverHandler handles GET /api/v1/discover?mood=...
// mood 为空表示不过滤情绪。
func (h *DiscoveryHandler) DiscoverHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	mood := r.URL.Query().Get("mood")

	candidates, err := h.discoveryService.Discover(r.Context(), userID, mood)
	if err != nil {
		log.Printf("Error discovering peers for user %d (mood=%q): %v", userID, mood, err)
		writeJSONError(w, "获取候选用户失败", http.StatusInternalServerError)
		return
	}

	if candidates == nil {
		candidates = []*services.DiscoveredUser{}
	}
	writeJSONResponse(w, http.StatusOK, candidates)
}
