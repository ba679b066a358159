package httpapi

import (
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error, module string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Detail: detailFor(err, module)})
}

func (s *HTTPServer) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "pong! :)"})
}

func (s *HTTPServer) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}

	_, token, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}

	writeToken(w, http.StatusOK, token)
}

func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}

	writeToken(w, http.StatusOK, token)
}

func (s *HTTPServer) moduleLogin(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, module)
		return
	}

	token, err := s.auth.AuthorizeAndIssue(r.Context(), req.Email, req.Password, module)
	if err != nil {
		s.fail(w, r, err, module)
		return
	}

	s.logger.Info(r.Context(), "module login", "module", module)
	writeToken(w, http.StatusOK, token)
}

// checkToken validates a module token. An optional "module" query parameter
// must match the token's module claim.
func (s *HTTPServer) checkToken(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		s.fail(w, r, common.ErrInvalidToken, "")
		return
	}

	res, err := s.auth.Check(r.Context(), token)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}

	if want := r.URL.Query().Get("module"); want != "" && want != res.Module.Name {
		s.fail(w, r, common.ErrAccessDenied, want)
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Message: "Token is valid and user has access to the module",
		UserID:  res.User.ID,
		Module:  res.Module.Name,
	})
}

func (s *HTTPServer) refreshToken(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		s.fail(w, r, common.ErrInvalidToken, "")
		return
	}

	fresh, err := s.auth.Refresh(r.Context(), token)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}

	writeToken(w, http.StatusOK, fresh)
}

func (s *HTTPServer) createModule(w http.ResponseWriter, r *http.Request) {
	var req moduleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}

	m, err := s.modules.CreateModule(r.Context(), req.Name, req.Description)
	if err != nil {
		s.fail(w, r, err, req.Name)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Module '%s' created successfully", m.Name),
		ID:      m.ID,
	})
}

func (s *HTTPServer) listModules(w http.ResponseWriter, r *http.Request) {
	items, err := s.modules.ListModules(r.Context())
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) assignModule(w http.ResponseWriter, r *http.Request) {
	var req moduleAssignRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}

	res, err := s.modules.AssignUserToModule(r.Context(), req.Email, req.Module)
	if err != nil {
		s.fail(w, r, err, req.Module)
		return
	}

	msg := fmt.Sprintf("User '%s' assigned to module '%s'", req.Email, req.Module)
	if !res.Created && !res.Reactivated {
		msg = fmt.Sprintf("User already assigned to module '%s'", req.Module)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (s *HTTPServer) revokeModule(w http.ResponseWriter, r *http.Request) {
	var req moduleAssignRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}

	if err := s.modules.RevokeUserFromModule(r.Context(), req.Email, req.Module); err != nil {
		s.fail(w, r, err, req.Module)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("User '%s' removed from module '%s'", req.Email, req.Module),
	})
}

func (s *HTTPServer) setGrantStatus(w http.ResponseWriter, r *http.Request) {
	var req grantStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if req.Active == nil {
		s.fail(w, r, fmt.Errorf("%w: active is required", common.ErrValidation), "")
		return
	}

	if err := s.modules.SetGrantActive(r.Context(), req.Email, req.Module, *req.Active); err != nil {
		s.fail(w, r, err, req.Module)
		return
	}

	state := "deactivated"
	if *req.Active {
		state = "activated"
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Access of '%s' to module '%s' %s", req.Email, req.Module, state),
	})
}
