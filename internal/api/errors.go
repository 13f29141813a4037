package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
)

func errorBody(msg, code string) gin.H {
	return gin.H{"ok": false, "error": msg, "code": code}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInputValidation, apperr.KindExpired, apperr.KindBadSignature:
		return http.StatusBadRequest
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindTransient:
		return http.StatusBadGateway
	case apperr.KindRelayerMismatch:
		return http.StatusServiceUnavailable
	case apperr.KindAlreadyRunning:
		return http.StatusConflict
	case apperr.KindReverted:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {ok:false, error, code}. Errors without a kind and
// relayer mismatches are logged and answered without their text.
func (s *Server) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	_ = c.Error(err)

	switch kind {
	case "":
		s.logger.Error("request failed", zap.String(requestIDKey, c.GetString(requestIDKey)), zap.Error(err))
		c.AbortWithStatusJSON(status, errorBody("internal error", "internal"))
		return
	case apperr.KindRelayerMismatch:
		// Operator misconfiguration; callers only learn the service is down.
		s.logger.Error("relay blocked", zap.String(requestIDKey, c.GetString(requestIDKey)), zap.Error(err))
		c.AbortWithStatusJSON(status, errorBody("service unavailable", "unavailable"))
		return
	}
	c.AbortWithStatusJSON(status, errorBody(err.Error(), string(kind)))
}
