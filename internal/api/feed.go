package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/feed"
)

func (s *Server) activity(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	events, err := s.deps.Feed.Activity(c.Request.Context(), page)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": events, "limit": effectiveLimit(page), "offset": page.Offset})
}

func (s *Server) holders(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	holders, err := s.deps.Feed.Holders(c.Request.Context(), page)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": holders, "limit": effectiveLimit(page), "offset": page.Offset})
}

// parsePage reads limit and offset. An explicit limit must be positive; an
// absent one takes the feed default.
func parsePage(c *gin.Context) (feed.Page, error) {
	var page feed.Page
	if raw, ok := c.GetQuery("limit"); ok {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return page, apperr.New(apperr.KindInputValidation, "limit", "must be a positive integer")
		}
		page.Limit = limit
	}
	if raw, ok := c.GetQuery("offset"); ok {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return page, apperr.New(apperr.KindInputValidation, "offset", "must be a non-negative integer")
		}
		page.Offset = offset
	}
	return page, nil
}

func effectiveLimit(page feed.Page) int {
	if page.Limit == 0 {
		return feed.DefaultLimit
	}
	return page.Limit
}
