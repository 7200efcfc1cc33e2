package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/entsync/entsync/internal/models"
	"github.com/entsync/entsync/internal/server/auth"
	"github.com/entsync/entsync/internal/server/storage"
	"github.com/entsync/entsync/pkg/api"
)

// TokenIssuer creates signed access tokens. Implemented by the jwt package.
type TokenIssuer interface {
	Issue(username string) (string, error)
}

// AuthHandler serves signup and login.
type AuthHandler struct {
	logger      *slog.Logger
	userStorage storage.UserStorage
	tokens      TokenIssuer
	validate    *validator.Validate
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(logger *slog.Logger, userStorage storage.UserStorage, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		userStorage: userStorage,
		tokens:      tokens,
		validate:    validator.New(),
	}
}

// Signup handles POST /api/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode signup request", slog.Any("error", err))
		sendError(h.logger, w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.logger.WarnContext(ctx, "signup validation failed",
			slog.String("username", req.Username), slog.Any("error", err))
		sendError(h.logger, w, "Username and password are required; username 3-32 chars, password at least 6", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Favorites:    []string{},
		Feedback:     []models.Feedback{},
	}

	if err := h.userStorage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.logger.WarnContext(ctx, "username already taken", slog.String("username", req.Username))
			sendError(h.logger, w, "Username already exists", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user registered", slog.String("username", req.Username))

	sendJSON(h.logger, w, api.SignupResponse{
		Message:  "User created successfully",
		Username: req.Username,
	}, http.StatusCreated)
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(h.logger, w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		sendError(h.logger, w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.userStorage.GetUser(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.logger.WarnContext(ctx, "login failed: user not found", slog.String("username", req.Username))
			sendError(h.logger, w, "Invalid credentials", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.logger.WarnContext(ctx, "login failed: wrong password", slog.String("username", req.Username))
		sendError(h.logger, w, "Invalid credentials", http.StatusBadRequest)
		return
	}

	token, err := h.tokens.Issue(user.Username)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token", slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user logged in", slog.String("username", req.Username))

	sendJSON(h.logger, w, api.LoginResponse{
		Username:     user.Username,
		Token:        token,
		CoverPhoto:   user.CoverPhoto,
		ProfilePhoto: user.ProfilePhoto,
		Favorites:    user.Favorites,
		Feedback:     feedbackToAPI(user.Feedback),
	}, http.StatusOK)
}
