package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *HTTPServer) adminGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" {
			got := r.Header.Get(common.AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "Admin token required"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
