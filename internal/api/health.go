package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) health(c *gin.Context) {
	body := gin.H{"ok": true}

	if s.deps.Guard != nil {
		id, err := s.deps.Guard.Inspect(c.Request.Context())
		body["configured_relayer"] = id.Configured.Hex()
		if err != nil {
			s.logger.Warn("health relayer read failed", zap.Error(err))
			body["onchain_relayer"] = nil
			body["relayer_error"] = err.Error()
			body["relayer_match"] = false
		} else {
			body["onchain_relayer"] = id.OnChain.Hex()
			body["relayer_match"] = id.Match
		}
		if err != nil || !id.Match {
			body["ok"] = false
		}
	}

	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.StoreTimeout)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			body["store"] = "unavailable"
			body["store_error"] = err.Error()
			body["ok"] = false
		} else {
			body["store"] = "ok"
		}
	}

	if s.deps.Sync != nil {
		status := s.deps.Sync.Status()
		body["sync_state"] = status.State
		body["last_error"] = status.LastError
		if status.HasCursor {
			body["last_synced_block"] = status.Cursor
		} else {
			body["last_synced_block"] = nil
		}
		body["head"] = status.Head
	}

	c.JSON(http.StatusOK, body)
}
