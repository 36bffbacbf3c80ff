// Profile HTTP handlers.
//
// This file exposes a small operator-facing surface for profile lifecycle:
//   - POST /profiles                    (create)
//   - POST /profiles/:id/pairing-code   (issue a linking code)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Linking itself happens
// over the messaging channel; this surface only mints the codes users send.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/repo"
	"github.com/finchat/go-finance-bot/internal/services"
)

// ProfileHandler groups the profile endpoints.
type ProfileHandler struct {
	DB     *gorm.DB
	Linker *services.LinkingService
}

// CreateProfileRequest is the JSON payload for creating a profile.
type CreateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required,min=1,max=120"`
	// HomeCurrency is an ISO-4217 code; defaults to USD when empty.
	HomeCurrency string `json:"home_currency" binding:"omitempty,len=3"`
}

// ProfileResponse is the JSON shape of a profile.
type ProfileResponse struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	HomeCurrency string `json:"home_currency"`
	Linked       bool   `json:"linked"`
}

// PairingCodeResponse carries a freshly issued pairing code.
type PairingCodeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateProfile handles POST /profiles.
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	var req CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload: "+err.Error())
		return
	}

	p, err := repo.CreateProfile(c.Request.Context(), h.DB, req.DisplayName, req.HomeCurrency)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not create profile")
		return
	}

	ok(c, http.StatusCreated, ProfileResponse{
		ID:           p.ID,
		DisplayName:  p.DisplayName,
		HomeCurrency: p.HomeCurrency,
		Linked:       p.Linked(),
	})
}

// IssuePairingCode handles POST /profiles/:id/pairing-code. Any outstanding
// code on the profile is replaced.
func (h *ProfileHandler) IssuePairingCode(c *gin.Context) {
	id := c.Param("id")

	if _, err := repo.GetProfile(c.Request.Context(), h.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load profile")
		return
	}

	code, err := h.Linker.IssueCode(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not issue pairing code")
		return
	}

	ok(c, http.StatusCreated, PairingCodeResponse{
		Code:      code,
		ExpiresAt: time.Now().UTC().Add(h.Linker.CodeTTL),
	})
}
