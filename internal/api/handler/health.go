package handler

import (
	"net/http"

	"github.com/openshelf/shelfscan/internal/api/response"
	"github.com/openshelf/shelfscan/internal/cache"
	"github.com/openshelf/shelfscan/internal/store"
)

type healthResponse struct {
	Success  bool              `json:"success"`
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health checks database and cache connectivity.
func Health(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, http.StatusOK, healthResponse{
			Success:  true,
			Status:   "ok",
			Services: checks,
		})
	}
}
