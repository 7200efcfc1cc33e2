package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/entsync/entsync/internal/server/middleware"
	"github.com/entsync/entsync/internal/server/storage"
	"github.com/entsync/entsync/pkg/api"
)

// UserHandler serves profile updates.
type UserHandler struct {
	logger      *slog.Logger
	userStorage storage.UserStorage
}

// NewUserHandler creates the user handler.
func NewUserHandler(logger *slog.Logger, userStorage storage.UserStorage) *UserHandler {
	return &UserHandler{logger: logger, userStorage: userStorage}
}

// Update handles PUT /api/user/{username}. Only the fields present in the
// body are applied; the rest of the profile is preserved.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := mux.Vars(r)["username"]

	// The token subject must match the profile being updated.
	if caller, ok := middleware.Username(ctx); !ok || caller != username {
		h.logger.WarnContext(ctx, "profile update forbidden",
			slog.String("username", username))
		sendError(h.logger, w, "Cannot update another user's profile", http.StatusForbidden)
		return
	}

	var req api.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode update request", slog.Any("error", err))
		sendError(h.logger, w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userStorage.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			sendError(h.logger, w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if req.CoverPhoto != nil {
		user.CoverPhoto = *req.CoverPhoto
	}
	if req.ProfilePhoto != nil {
		user.ProfilePhoto = *req.ProfilePhoto
	}
	if req.Favorites != nil {
		user.Favorites = *req.Favorites
	}
	if req.Feedback != nil {
		user.Feedback = feedbackFromAPI(*req.Feedback)
	}

	if err := h.userStorage.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			sendError(h.logger, w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to update user", slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "profile updated", slog.String("username", username))

	sendJSON(h.logger, w, profileFromUser(user), http.StatusOK)
}
