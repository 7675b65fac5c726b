package bot

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mmelo/zapai/internal/memory"
)

// HandleHealth reports liveness plus the active conversation count.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	active, err := h.store.Active(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("bot: failed to count conversations")
	}

	writeJSON(w, map[string]any{
		"status":               "ok",
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
		"active_conversations": active,
	})
}

// HandleStats exposes the process-wide counters.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	active, err := h.store.Active(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("bot: failed to count conversations")
	}

	writeJSON(w, map[string]any{
		"active_conversations":  active,
		"messages_processed":    h.stats.MessagesProcessed(),
		"rate_limit_per_minute": h.opts.RateLimitPerMinute,
	})
}

// HandleConversation returns one identity's ordered history. Read-only
// diagnostic endpoint.
func (h *Handler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	history, err := h.store.History(r.Context(), identity)
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("bot: failed to load history")
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []memory.Entry{}
	}

	writeJSON(w, map[string]any{
		"identity": identity,
		"entries":  history,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("bot: failed to encode response")
	}
}
