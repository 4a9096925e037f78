package authority

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/auth"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type initRequest struct {
	FeeBps uint16 `json:"fee_bps"`
}

type transferRequest struct {
	Proposed string `json:"proposed" binding:"required"`
}

func (h *Handler) Initialize(c *gin.Context) {
	caller, ok := auth.Caller(c)
	if !ok {
		_ = c.Error(apperrors.Authorization("caller not authenticated"))
		return
	}
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrValidation, "invalid request body", err))
		return
	}

	authority, err := h.service.Initialize(c.Request.Context(), caller, req.FeeBps)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, authority)
}

func (h *Handler) GetAuthority(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	authority, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, authority)
}

func (h *Handler) ListAuthorities(c *gin.Context) {
	current := c.Query("current")
	if !common.IsHexAddress(current) {
		_ = c.Error(apperrors.Validation("current must be an address"))
		return
	}
	authorities, err := h.service.ListByAuthority(c.Request.Context(), common.HexToAddress(current))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, authorities)
}

func (h *Handler) RequestTransfer(c *gin.Context) {
	caller, ok := auth.Caller(c)
	if !ok {
		_ = c.Error(apperrors.Authorization("caller not authenticated"))
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Proposed) {
		_ = c.Error(apperrors.Validation("proposed must be an address"))
		return
	}

	authority, err := h.service.RequestTransfer(c.Request.Context(), caller, id, common.HexToAddress(req.Proposed))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, authority)
}

func (h *Handler) AcceptTransfer(c *gin.Context) {
	caller, ok := auth.Caller(c)
	if !ok {
		_ = c.Error(apperrors.Authorization("caller not authenticated"))
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	authority, err := h.service.AcceptTransfer(c.Request.Context(), caller, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, authority)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		_ = c.Error(apperrors.Validation("invalid id"))
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	authorities := router.Group("/authorities")
	{
		authorities.POST("", h.Initialize)
		authorities.GET("", h.ListAuthorities)
		authorities.GET("/:id", h.GetAuthority)
		authorities.POST("/:id/transfer", h.RequestTransfer)
		authorities.POST("/:id/accept", h.AcceptTransfer)
	}
}
