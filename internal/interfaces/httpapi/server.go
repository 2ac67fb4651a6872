package httpapi

import (
	"net/http"

	"github.com/rhythmnet/rhythmd/internal/platform/logging"
)

func NewRouter(
	handler *Handler,
	logger *logging.Logger,
	corsAllowedOrigins []string,
	adminToken string,
) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Healthz)

	mux.HandleFunc("POST /v1/scores", handler.SubmitScore)
	mux.HandleFunc("GET /v1/beatmaps/{hash}/scores", handler.GetBeatmapLeaderboard)
	mux.HandleFunc("GET /v1/users/{userID}/stats", handler.GetUserStats)

	// Classic-client surface; plaintext responses, always HTTP 200.
	mux.HandleFunc("POST /web/submit", handler.SubmitScoreLegacy)

	mux.Handle("PUT /v1/admin/maintenance",
		RequireAdminToken(adminToken, http.HandlerFunc(handler.SetMaintenance)))
	mux.Handle("POST /v1/admin/users/{userID}/restriction",
		RequireAdminToken(adminToken, http.HandlerFunc(handler.RestrictUser)))
	mux.Handle("DELETE /v1/admin/users/{userID}/restriction",
		RequireAdminToken(adminToken, http.HandlerFunc(handler.UnrestrictUser)))
	mux.Handle("DELETE /v1/admin/scores/{scoreID}",
		RequireAdminToken(adminToken, http.HandlerFunc(handler.RemoveScore)))

	return RequestTracing(RequestLogging(logger, CORS(corsAllowedOrigins, recoverPanic(logger, mux))))
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.recoverPanic")
		defer span.End()

		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(ctx, "panic recovered", "panic", rec)
				writeInternalError(ctx, w)
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
