package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kbconsole/answerrelay/internal/services"
	"github.com/kbconsole/answerrelay/pkg/httpext"
	"github.com/kbconsole/answerrelay/pkg/logger"
)

type HealthResponse struct {
	Status      string `json:"status"`
	SourceReady bool   `json:"source_ready"`
	Redis       string `json:"redis"`
	Connections int    `json:"connections"`
	ActiveTurns int    `json:"active_turns"`
}

// HandleHealth reports liveness. It answers 503 when no delta source is
// configured, since no question could be answered.
func HandleHealth(services *services.Services, w http.ResponseWriter, r *http.Request) {
	clog := logger.Component(logger.HANDLER)
	resp := HealthResponse{
		Status:      "ok",
		SourceReady: services.GetRelayService().Ready(),
		Redis:       "disabled",
		Connections: services.GetConnectionManager().GetConnectionCount(),
		ActiveTurns: services.GetRelayService().Active(),
	}

	if redisService := services.GetRedisService(); redisService != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Redis = "ok"
		if err := redisService.Ping(ctx); err != nil {
			clog.Warn().Err(err).Msg("Redis health check failed")
			resp.Redis = "error"
		}
	}

	code := http.StatusOK
	if !resp.SourceReady {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	httpext.JsonResponse(w, code, resp)
}
