package transaction

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Handler serves read-only operation history.
type Handler struct {
	repo TransactionRepository
}

func NewHandler(repo TransactionRepository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) GetByHash(c *gin.Context) {
	tx, err := h.repo.GetByTxHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		_ = c.Error(apperrors.Wrap(err))
		return
	}
	if tx == nil {
		_ = c.Error(apperrors.NotFound("transaction not found"))
		return
	}
	c.JSON(http.StatusOK, tx)
}

// List filters by ?pool=, ?caller=, ?type= or an RFC3339 ?since=&until= range,
// newest first.
func (h *Handler) List(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var (
		txs []*models.Transaction
		err error
	)
	switch {
	case c.Query("pool") != "":
		addr, ok := hexParam(c, "pool")
		if !ok {
			return
		}
		txs, err = h.repo.GetByPool(ctx, addr, limit, offset)
	case c.Query("caller") != "":
		addr, ok := hexParam(c, "caller")
		if !ok {
			return
		}
		txs, err = h.repo.GetByCaller(ctx, addr, limit, offset)
	case c.Query("type") != "":
		txs, err = h.repo.GetByType(ctx, models.OperationType(c.Query("type")), limit, offset)
	case c.Query("since") != "":
		start, end, ok := window(c)
		if !ok {
			return
		}
		txs, err = h.repo.GetTransactionsByDateRange(ctx, start, end)
	default:
		txs, err = h.repo.GetRecentTransactions(ctx, limit)
	}
	if err != nil {
		_ = c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, txs)
}

// Volume sums a pool's traded notional over ?window= (default 24h).
func (h *Handler) Volume(c *gin.Context) {
	addr, ok := hexParam(c, "pool")
	if !ok {
		return
	}
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			_ = c.Error(apperrors.Validation("invalid window"))
			return
		}
		window = d
	}

	volume, err := h.repo.GetPoolTradeVolume(c.Request.Context(), addr, time.Now().Add(-window))
	if err != nil {
		_ = c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"pool": addr, "window": window.String(), "volume": volume})
}

// Count returns how many operations a caller has submitted.
func (h *Handler) Count(c *gin.Context) {
	addr, ok := hexParam(c, "caller")
	if !ok {
		return
	}
	count, err := h.repo.GetCallerTransactionCount(c.Request.Context(), addr)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"caller": addr, "count": count})
}

func window(c *gin.Context) (time.Time, time.Time, bool) {
	start, err := time.Parse(time.RFC3339, c.Query("since"))
	if err != nil {
		_ = c.Error(apperrors.Validation("since must be RFC3339"))
		return time.Time{}, time.Time{}, false
	}
	end := time.Now()
	if raw := c.Query("until"); raw != "" {
		if end, err = time.Parse(time.RFC3339, raw); err != nil || end.Before(start) {
			_ = c.Error(apperrors.Validation("until must be RFC3339 and not before since"))
			return time.Time{}, time.Time{}, false
		}
	}
	return start, end, true
}

func hexParam(c *gin.Context, name string) (string, bool) {
	v := c.Query(name)
	if v == "" {
		v = c.Param(name)
	}
	if !common.IsHexAddress(v) {
		_ = c.Error(apperrors.Validation(name + " must be an address"))
		return "", false
	}
	return common.HexToAddress(v).Hex(), true
}

func page(c *gin.Context) (int, int, bool) {
	limit, offset := defaultLimit, 0
	var err error
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 || limit > maxLimit {
			_ = c.Error(apperrors.Validation("invalid limit"))
			return 0, 0, false
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			_ = c.Error(apperrors.Validation("invalid offset"))
			return 0, 0, false
		}
	}
	return limit, offset, true
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	txs := router.Group("/transactions")
	{
		txs.GET("", h.List)
		txs.GET("/volume/:pool", h.Volume)
		txs.GET("/count/:caller", h.Count)
		txs.GET("/:hash", h.GetByHash)
	}
}
