package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthHandler exchanges the provisioned API token for a short-lived JWT
// carrying the caller's actor and organization identity.
type AuthHandler struct {
	APIToken    string
	Secret      []byte
	ExpireHours int
}

// Token issues a JWT. Body: {"api_token": "...", "actor": "...", "org_id": "..."}.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var input struct {
		APIToken string `json:"api_token"`
		Actor    string `json:"actor"`
		OrgID    string `json:"org_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid json", http.StatusBadRequest)
		return
	}
	if subtle.ConstantTimeCompare([]byte(input.APIToken), []byte(h.APIToken)) != 1 {
		JSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if input.Actor == "" {
		JSONValidationError(w, "invalid request", map[string]string{"actor": "required"}, http.StatusBadRequest)
		return
	}

	expire := h.ExpireHours
	if expire <= 0 {
		expire = 24
	}
	claims := jwt.MapClaims{
		"actor":  input.Actor,
		"org_id": input.OrgID,
		"exp":    time.Now().Add(time.Duration(expire) * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.Secret)
	if err != nil {
		JSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": signed})
}
