package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/facewatch/internal/store"
)

// LiveIdentities is the in-memory identity set used for matching.
type LiveIdentities interface {
	Names() []string
	Dim() int
	Refresh() error
}

// IdentityHandler serves the identity endpoints. The database is optional;
// without it only the live set can be listed.
type IdentityHandler struct {
	live LiveIdentities
	db   *store.Store
}

// NewIdentityHandler creates an IdentityHandler. db may be nil.
func NewIdentityHandler(live LiveIdentities, db *store.Store) *IdentityHandler {
	return &IdentityHandler{live: live, db: db}
}

type identityResponse struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Dim       int    `json:"dim"`
	Samples   int    `json:"samples,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type listIdentitiesResponse struct {
	Identities []identityResponse `json:"identities"`
	Loaded     int                `json:"loaded"`
	Dim        int                `json:"dim"`
}

func toResponse(i *store.Identity) identityResponse {
	return identityResponse{
		ID:        i.ID,
		Name:      i.Name,
		Dim:       i.Dim(),
		Samples:   i.Samples,
		CreatedAt: i.CreatedAt.Format(time.RFC3339),
		UpdatedAt: i.UpdatedAt.Format(time.RFC3339),
	}
}

// Routes registers the handler on r.
func (h *IdentityHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	if h.db != nil {
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
	}
}

// List handles GET /api/identities.
func (h *IdentityHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.live.Names()
	response := listIdentitiesResponse{
		Identities: make([]identityResponse, 0, len(names)),
		Loaded:     len(names),
		Dim:        h.live.Dim(),
	}

	if h.db == nil {
		for _, name := range names {
			response.Identities = append(response.Identities, identityResponse{Name: name, Dim: response.Dim})
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	identities, err := h.db.Identities().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list identities")
		return
	}
	for _, i := range identities {
		response.Identities = append(response.Identities, toResponse(i))
	}
	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/identities/{id}.
func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := h.db.Identities().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Identity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get identity")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(identity))
}

// Delete handles DELETE /api/identities/{id}. The live set is reloaded so the
// identity stops matching immediately.
func (h *IdentityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Identities().Delete(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Identity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete identity")
		return
	}

	if err := h.live.Refresh(); err != nil {
		slog.Warn("identity reload after delete failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
