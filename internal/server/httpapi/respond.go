package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/modauth/internal/common"
)

var errBadBody = fmt.Errorf("%w: invalid request body", common.ErrValidation)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type moduleCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type moduleAssignRequest struct {
	Email  string `json:"email"`
	Module string `json:"module"`
}

type grantStatusRequest struct {
	Email  string `json:"email"`
	Module string `json:"module"`
	Active *bool  `json:"active"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

type checkResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Module  string `json:"module"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeToken(w http.ResponseWriter, status int, token string) {
	writeJSON(w, status, tokenResponse{AccessToken: token, TokenType: common.TokenType})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errBadBody
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

// tokenFromRequest reads the token from the "token" query parameter or,
// failing that, from a bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get(common.AuthorizationHeader)
	if len(h) > len(common.BearerPrefix) && strings.EqualFold(h[:len(common.BearerPrefix)], common.BearerPrefix) {
		return strings.TrimSpace(h[len(common.BearerPrefix):])
	}
	return ""
}
