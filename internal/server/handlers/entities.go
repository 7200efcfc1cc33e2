package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/entsync/entsync/internal/models"
	"github.com/entsync/entsync/internal/server/storage"
)

// serverIDPrefix marks identifiers assigned by this server. Client-side
// provisional ids ("loc-" prefix) are always replaced on create.
const serverIDPrefix = "srv-"

// EntityHandler serves the synced entity collections.
type EntityHandler struct {
	logger        *slog.Logger
	entityStorage storage.EntityStorage
	now           func() time.Time
}

// NewEntityHandler creates the entity handler.
func NewEntityHandler(logger *slog.Logger, entityStorage storage.EntityStorage) *EntityHandler {
	return &EntityHandler{
		logger:        logger,
		entityStorage: entityStorage,
		now:           time.Now,
	}
}

// List handles GET /api/entities/{kind}. Tombstones are not returned.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := mux.Vars(r)["kind"]

	entities, err := h.entityStorage.ListEntities(ctx, kind)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list entities",
			slog.String("kind", kind), slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if entities == nil {
		entities = []*models.Entity{}
	}

	sendJSON(h.logger, w, entities, http.StatusOK)
}

// Create handles POST /api/entities/{kind}. Provisional or missing ids are
// replaced with a server-assigned one; the stored entity is returned.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := mux.Vars(r)["kind"]

	entity, ok := h.decodeEntity(w, r)
	if !ok {
		return
	}

	if entity.ID == "" || strings.HasPrefix(entity.ID, "loc-") {
		entity.ID = serverIDPrefix + uuid.New().String()
	}
	if entity.UpdatedAt == 0 {
		entity.UpdatedAt = h.now().UnixMilli()
	}
	entity.Deleted = false

	if _, err := h.entityStorage.SaveEntity(ctx, kind, entity); err != nil {
		h.logger.ErrorContext(ctx, "failed to save entity",
			slog.String("kind", kind), slog.String("id", entity.ID), slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "entity created",
		slog.String("kind", kind), slog.String("id", entity.ID))

	sendJSON(h.logger, w, entity, http.StatusCreated)
}

// Update handles PUT /api/entities/{kind}/{id}. The write is applied under
// last-write-wins; when the stored row is newer it is returned unchanged.
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	kind, id := vars["kind"], vars["id"]

	if _, err := h.entityStorage.GetEntity(ctx, kind, id); err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			sendError(h.logger, w, "Entity not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get entity",
			slog.String("kind", kind), slog.String("id", id), slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	entity, ok := h.decodeEntity(w, r)
	if !ok {
		return
	}
	entity.ID = id
	if entity.UpdatedAt == 0 {
		entity.UpdatedAt = h.now().UnixMilli()
	}

	applied, err := h.entityStorage.SaveEntity(ctx, kind, entity)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to save entity",
			slog.String("kind", kind), slog.String("id", id), slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if !applied {
		// The stored row won the conflict; return it so the client converges.
		stored, err := h.entityStorage.GetEntity(ctx, kind, id)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to get stored entity",
				slog.String("kind", kind), slog.String("id", id), slog.Any("error", err))
			sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
			return
		}
		sendJSON(h.logger, w, stored, http.StatusOK)
		return
	}

	sendJSON(h.logger, w, entity, http.StatusOK)
}

// Delete handles DELETE /api/entities/{kind}/{id} by writing a tombstone.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	kind, id := vars["kind"], vars["id"]

	existing, err := h.entityStorage.GetEntity(ctx, kind, id)
	if err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			sendError(h.logger, w, "Entity not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get entity",
			slog.String("kind", kind), slog.String("id", id), slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	tombstone := existing.Clone()
	tombstone.Deleted = true
	tombstone.UpdatedAt = h.now().UnixMilli()
	if tombstone.UpdatedAt <= existing.UpdatedAt {
		tombstone.UpdatedAt = existing.UpdatedAt + 1
	}

	if _, err := h.entityStorage.SaveEntity(ctx, kind, tombstone); err != nil {
		h.logger.ErrorContext(ctx, "failed to save tombstone",
			slog.String("kind", kind), slog.String("id", id), slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "entity deleted",
		slog.String("kind", kind), slog.String("id", id))

	w.WriteHeader(http.StatusNoContent)
}

func (h *EntityHandler) decodeEntity(w http.ResponseWriter, r *http.Request) (*models.Entity, bool) {
	var entity models.Entity
	if err := json.NewDecoder(r.Body).Decode(&entity); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode entity", slog.Any("error", err))
		sendError(h.logger, w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &entity, true
}
