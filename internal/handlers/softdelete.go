package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DeletePortfolio starts the undo window and answers 202 with the countdown.
func (h *Handler) DeletePortfolio(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	pd, err := m.DeletePortfolio(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"pending_delete": pd, "active_id": m.Active().ID})
}

func (h *Handler) Undo(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	p, err := m.Undo()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPendingDelete(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	pd, pending := m.Pending()
	if !pending {
		c.JSON(http.StatusOK, gin.H{"pending": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": true, "pending_delete": pd})
}

// StreamPendingDelete sends a "countdown" event per second and a final "resolved" event
// once the deletion is undone or committed.
func (h *Handler) StreamPendingDelete(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	ch := m.Watch(ctx)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		select {
		case left, open := <-ch:
			if !open {
				_, pending := m.Pending()
				c.SSEvent("resolved", gin.H{"pending": pending})
				return false
			}
			c.SSEvent("countdown", gin.H{"seconds_left": left})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
