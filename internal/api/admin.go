package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
)

type syncRequest struct {
	Lookback *uint64 `json:"lookback"`
}

func (s *Server) triggerSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(c, apperr.Wrap(apperr.KindInputValidation, "bind request", err))
		return
	}

	lookback := s.cfg.DefaultLookback
	if req.Lookback != nil {
		lookback = *req.Lookback
	}

	report, err := s.deps.Sync.Sync(c.Request.Context(), lookback)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "report": report, "status": s.deps.Sync.Status()})
}
