package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func NewRouter(h *Handler, log *logrus.Logger) *gin.Engine {
	rg := gin.New()
	rg.Use(gin.Recovery(), RequestLogger(log))
	rg.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	h.Register(rg)
	return rg
}
