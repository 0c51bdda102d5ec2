package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"allocator/internal/allocation"
	"allocator/internal/models"
	"allocator/internal/portfolio"
	"allocator/internal/service"
)

type Handler struct {
	ws       *service.Workspaces
	priceSvc service.PriceProvider
	log      *logrus.Logger
}

func NewHandler(ws *service.Workspaces, p service.PriceProvider, log *logrus.Logger) *Handler {
	return &Handler{ws: ws, priceSvc: p, log: log}
}

// Register mounts every portfolio route under /users/:userId.
func (h *Handler) Register(r gin.IRouter) {
	u := r.Group("/users/:userId")
	u.GET("/portfolios", h.ListPortfolios)
	u.POST("/portfolios", h.CreatePortfolio)
	u.PUT("/portfolios/:id/name", h.RenamePortfolio)
	u.DELETE("/portfolios/:id", h.DeletePortfolio)
	u.PUT("/active", h.SelectPortfolio)

	u.PATCH("/portfolio", h.UpdatePortfolio)
	u.PATCH("/portfolio/risk-profile", h.UpdateRiskProfile)
	u.POST("/portfolio/assets", h.AddAsset)
	u.PATCH("/portfolio/assets/:assetId", h.UpdateAsset)
	u.DELETE("/portfolio/assets/:assetId", h.DeleteAsset)
	u.GET("/portfolio/report", h.GetReport)
	u.POST("/portfolio/refresh-prices", h.RefreshPrices)

	u.POST("/undo", h.Undo)
	u.GET("/pending-delete", h.GetPendingDelete)
	u.GET("/pending-delete/stream", h.StreamPendingDelete)
}

type nameRequest struct {
	Name string `json:"name"`
}

type selectRequest struct {
	PortfolioID int64 `json:"portfolio_id" binding:"required"`
}

type fieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

type riskRequest struct {
	Bucket string `json:"bucket" binding:"required"`
	Value  string `json:"value"`
}

type assetRequest struct {
	Category string `json:"category" binding:"required"`
}

// manager resolves the caller's workspace, writing the error response itself on failure.
func (h *Handler) manager(c *gin.Context) (*portfolio.Manager, bool) {
	m, err := h.ws.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return m, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	entry := h.log.WithFields(logrus.Fields{"request_id": c.GetString(RequestIDKey), "user_id": c.Param("userId")})
	if status >= http.StatusInternalServerError {
		entry.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	} else {
		entry.Warnf("%s %s rejected: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, portfolio.ErrPortfolioNotFound), errors.Is(err, portfolio.ErrAssetNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, portfolio.ErrLastPortfolio):
		return http.StatusConflict, "last_portfolio"
	case errors.Is(err, portfolio.ErrUndoExpired):
		return http.StatusConflict, "undo_expired"
	case errors.Is(err, portfolio.ErrNothingPending):
		return http.StatusConflict, "nothing_pending"
	case errors.Is(err, portfolio.ErrUnknownField), errors.Is(err, portfolio.ErrInvalidValue), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, portfolio.ErrClosed), errors.Is(err, service.ErrShuttingDown):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return errors.Join(errBadRequest, err)
}

func (h *Handler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, badRequest(errors.New(name+" must be a positive integer")))
		return 0, false
	}
	return id, true
}

func (h *Handler) ListPortfolios(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.View())
}

func (h *Handler) CreatePortfolio(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	p, err := m.AddPortfolio()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) RenamePortfolio(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	p, err := m.RenamePortfolio(id, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) SelectPortfolio(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.SelectPortfolio(req.PortfolioID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m.Active())
}

func (h *Handler) UpdatePortfolio(c *gin.Context) {
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	p, err := m.UpdateField(req.Field, req.Value)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateRiskProfile(c *gin.Context) {
	var req riskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	p, err := m.UpdateRiskProfile(models.Bucket(req.Bucket), req.Value)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) AddAsset(c *gin.Context) {
	var req assetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	a, err := m.AddAsset(models.Category(req.Category))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAsset(c *gin.Context) {
	assetID, ok := h.idParam(c, "assetId")
	if !ok {
		return
	}
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	p, err := m.UpdateAsset(assetID, req.Field, req.Value)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteAsset(c *gin.Context) {
	assetID, ok := h.idParam(c, "assetId")
	if !ok {
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	p, err := m.DeleteAsset(assetID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetReport(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, allocation.BuildReport(m.Active()))
}

func (h *Handler) RefreshPrices(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	res, err := service.RefreshPrices(c.Request.Context(), m, h.priceSvc, h.log)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
