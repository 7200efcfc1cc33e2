// Package handlers implements the HTTP API of the sync server.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/entsync/entsync/internal/models"
	"github.com/entsync/entsync/pkg/api"
)

// sendJSON writes data as a JSON response with the given status code.
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError writes an ErrorResponse with the given status code.
func sendError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	sendJSON(logger, w, api.ErrorResponse{Message: message}, statusCode)
}

func profileFromUser(user *models.User) api.UserProfile {
	return api.UserProfile{
		Username:     user.Username,
		CoverPhoto:   user.CoverPhoto,
		ProfilePhoto: user.ProfilePhoto,
		Favorites:    user.Favorites,
		Feedback:     feedbackToAPI(user.Feedback),
	}
}

func feedbackToAPI(feedback []models.Feedback) []api.FeedbackEntry {
	entries := make([]api.FeedbackEntry, 0, len(feedback))
	for _, f := range feedback {
		entries = append(entries, api.FeedbackEntry{Date: f.Date, Text: f.Text})
	}
	return entries
}

func feedbackFromAPI(entries []api.FeedbackEntry) []models.Feedback {
	feedback := make([]models.Feedback, 0, len(entries))
	for _, e := range entries {
		feedback = append(feedback, models.Feedback{Date: e.Date, Text: e.Text})
	}
	return feedback
}
