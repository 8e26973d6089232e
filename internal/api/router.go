package api

import (
	"net/http"

	"avatar-transformer/internal/common/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts every route on a ServeMux and wraps it in CORS.
func NewRouter(h *Handler, log logger.Logger, allowedOrigins []string) http.Handler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/profile-image", WithLogging(log, "profile-image", h.ProfileImage))
	mux.HandleFunc("POST /api/transform", WithLogging(log, "transform", h.StartTransform))
	mux.HandleFunc("GET /api/status", WithLogging(log, "status", h.Status))
	mux.HandleFunc("POST /api/transformations", WithLogging(log, "transformations", h.RunFlow))

	return CORS(allowedOrigins)(mux)
}
