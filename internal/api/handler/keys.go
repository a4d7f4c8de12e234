package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openshelf/shelfscan/internal/api/response"
	"github.com/openshelf/shelfscan/internal/store"
	"github.com/openshelf/shelfscan/pkg/models"
)

const keyPrefixLen = 8

// KeyHandler serves the admin API-key management endpoints.
type KeyHandler struct {
	store store.Store
	log   *slog.Logger
}

func NewKeyHandler(st store.Store, log *slog.Logger) *KeyHandler {
	return &KeyHandler{store: st, log: log}
}

type createKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type createKeyResponse struct {
	Success bool           `json:"success"`
	Key     *models.APIKey `json:"key"`
	// RawKey is shown exactly once; only its hash is stored.
	RawKey string `json:"raw_key"`
}

func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
		return
	}
	if req.Name == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{"analyze"}
	}

	rawKey, err := generateRawKey()
	if err != nil {
		h.log.Error("failed to generate API key", slog.String("error", err.Error()))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate key", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to hash key", nil)
		return
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      req.Name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:keyPrefixLen],
		Scopes:    req.Scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		h.log.Error("failed to store API key", slog.String("error", err.Error()))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store key", nil)
		return
	}

	response.JSON(w, http.StatusCreated, createKeyResponse{
		Success: true,
		Key:     key,
		RawKey:  rawKey,
	})
}

type listKeysResponse struct {
	Success bool             `json:"success"`
	Keys    []*models.APIKey `json:"keys"`
}

func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		h.log.Error("failed to list API keys", slog.String("error", err.Error()))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list keys", nil)
		return
	}
	response.JSON(w, http.StatusOK, listKeysResponse{Success: true, Keys: keys})
}

type revokeKeyResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid key id", nil)
		return
	}
	if err := h.store.RevokeAPIKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
			return
		}
		h.log.Error("failed to revoke API key", slog.String("error", err.Error()))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke key", nil)
		return
	}
	response.JSON(w, http.StatusOK, revokeKeyResponse{Success: true, ID: id.String()})
}

func generateRawKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ss_" + hex.EncodeToString(buf), nil
}
