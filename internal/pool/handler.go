package pool

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/auth"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type initRequest struct {
	Collection     string          `json:"collection" binding:"required"`
	QuoteAsset     string          `json:"quote_asset" binding:"required"`
	AuthorityID    *uint           `json:"authority_id"`
	Kind           models.PoolKind `json:"kind"`
	Curve          curve.Kind      `json:"curve"`
	Delta          uint64          `json:"delta"`
	FeeBps         uint16          `json:"fee_bps"`
	SpotPrice      uint64          `json:"spot_price"`
	HonorRoyalties bool            `json:"honor_royalties"`
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type mintRequest struct {
	Mint string `json:"mint" binding:"required"`
}

type tradeRequest struct {
	Mint              string  `json:"mint" binding:"required"`
	PaymentRoute      string  `json:"payment_route"`
	ExpectedSpotPrice *uint64 `json:"expected_spot_price"`
}

type deltaRequest struct {
	Delta uint64 `json:"delta"`
}

type feeRequest struct {
	FeeBps uint16 `json:"fee_bps"`
}

type spotPriceRequest struct {
	SpotPrice uint64 `json:"spot_price"`
}

func (h *Handler) CreatePool(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req initRequest
	if !bind(c, &req) {
		return
	}
	collection, ok1 := address(req.Collection)
	quote, ok2 := address(req.QuoteAsset)
	if !ok1 || !ok2 {
		_ = c.Error(apperrors.Validation("collection and quote_asset must be addresses"))
		return
	}

	pool, err := h.service.Initialize(c.Request.Context(), InitParams{
		Owner:          caller,
		Collection:     collection,
		QuoteAsset:     quote,
		AuthorityID:    req.AuthorityID,
		Kind:           req.Kind,
		Curve:          req.Curve,
		Delta:          req.Delta,
		FeeBps:         req.FeeBps,
		SpotPrice:      req.SpotPrice,
		HonorRoyalties: req.HonorRoyalties,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, pool)
}

func (h *Handler) GetPool(c *gin.Context) {
	poolAddr, ok := poolParam(c)
	if !ok {
		return
	}
	pool, err := h.service.Get(c.Request.Context(), poolAddr)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

func (h *Handler) ListPools(c *gin.Context) {
	if owner := c.Query("owner"); owner != "" {
		ownerAddr, ok := address(owner)
		if !ok {
			_ = c.Error(apperrors.Validation("owner must be an address"))
			return
		}
		pools, err := h.service.ListByOwner(c.Request.Context(), ownerAddr)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, pools)
		return
	}

	if coll := c.Query("collection"); coll != "" {
		collAddr, ok := address(coll)
		if !ok {
			_ = c.Error(apperrors.Validation("collection must be an address"))
			return
		}
		pools, err := h.service.ListByCollection(c.Request.Context(), collAddr)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, pools)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	pools, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, pools)
}

func (h *Handler) ListActivePools(c *gin.Context) {
	pools, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, pools)
}

func (h *Handler) ListAssets(c *gin.Context) {
	poolAddr, ok := poolParam(c)
	if !ok {
		return
	}
	records, err := h.service.ListAssets(c.Request.Context(), poolAddr)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) GetQuote(c *gin.Context) {
	poolAddr, ok := poolParam(c)
	if !ok {
		return
	}
	side, err := curve.ParseDirection(c.DefaultQuery("side", "buy"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	decimals, err := strconv.ParseInt(c.DefaultQuery("decimals", "0"), 10, 32)
	if err != nil {
		_ = c.Error(apperrors.Validation("decimals must be an integer"))
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), poolAddr, side, int32(decimals))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) FundQuote(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	var req amountRequest
	if !bind(c, &req) {
		return
	}
	pool, err := h.service.FundWithQuote(c.Request.Context(), caller, poolAddr, req.Amount)
	respond(c, pool, err)
}

func (h *Handler) FundNFT(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	mint, ok := mintBody(c)
	if !ok {
		return
	}
	pool, err := h.service.FundWithAsset(c.Request.Context(), caller, poolAddr, mint)
	respond(c, pool, err)
}

func (h *Handler) Buy(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	var req tradeRequest
	if !bind(c, &req) {
		return
	}
	mint, ok := address(req.Mint)
	if !ok {
		_ = c.Error(apperrors.Validation("mint must be an address"))
		return
	}
	result, err := h.service.Buy(c.Request.Context(), BuyRequest{
		Buyer:             caller,
		Pool:              poolAddr,
		Mint:              mint,
		ExpectedSpotPrice: req.ExpectedSpotPrice,
	})
	respond(c, result, err)
}

func (h *Handler) Sell(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	var req tradeRequest
	if !bind(c, &req) {
		return
	}
	mint, ok := address(req.Mint)
	if !ok {
		_ = c.Error(apperrors.Validation("mint must be an address"))
		return
	}
	sell := SellRequest{
		Seller:            caller,
		Pool:              poolAddr,
		Mint:              mint,
		ExpectedSpotPrice: req.ExpectedSpotPrice,
	}
	if req.PaymentRoute != "" {
		route, ok := address(req.PaymentRoute)
		if !ok {
			_ = c.Error(apperrors.Validation("payment_route must be an address"))
			return
		}
		sell.PaymentRoute = &route
	}
	result, err := h.service.Sell(c.Request.Context(), sell)
	respond(c, result, err)
}

func (h *Handler) WithdrawNFT(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	mint, ok := mintBody(c)
	if !ok {
		return
	}
	record, err := h.service.WithdrawNFT(c.Request.Context(), caller, poolAddr, mint)
	respond(c, record, err)
}

func (h *Handler) WithdrawQuote(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	var req amountRequest
	if !bind(c, &req) {
		return
	}
	pool, err := h.service.WithdrawQuote(c.Request.Context(), caller, poolAddr, req.Amount)
	respond(c, pool, err)
}

func (h *Handler) WithdrawFee(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	var req amountRequest
	if !bind(c, &req) {
		return
	}
	pool, err := h.service.WithdrawFee(c.Request.Context(), caller, poolAddr, req.Amount)
	respond(c, pool, err)
}

func (h *Handler) ChangeDelta(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	var req deltaRequest
	if !bind(c, &req) {
		return
	}
	pool, err := h.service.ChangeDelta(c.Request.Context(), caller, poolAddr, req.Delta)
	respond(c, pool, err)
}

func (h *Handler) ChangeFee(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	var req feeRequest
	if !bind(c, &req) {
		return
	}
	pool, err := h.service.ChangeFee(c.Request.Context(), caller, poolAddr, req.FeeBps)
	respond(c, pool, err)
}

func (h *Handler) ChangeSpotPrice(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	var req spotPriceRequest
	if !bind(c, &req) {
		return
	}
	pool, err := h.service.ChangeSpotPrice(c.Request.Context(), caller, poolAddr, req.SpotPrice)
	respond(c, pool, err)
}

func (h *Handler) ClosePool(c *gin.Context) {
	caller, poolAddr, ok := target(c)
	if !ok {
		return
	}
	if err := h.service.ClosePool(c.Request.Context(), caller, poolAddr); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes mounts read routes on public and state-changing routes on
// authed, which must authenticate the caller.
func (h *Handler) RegisterRoutes(public, authed *gin.RouterGroup) {
	pools := public.Group("/pools")
	{
		pools.GET("", h.ListPools)
		pools.GET("/active", h.ListActivePools)
		pools.GET("/:address", h.GetPool)
		pools.GET("/:address/assets", h.ListAssets)
		pools.GET("/:address/quote", h.GetQuote)
	}

	admin := authed.Group("/pools")
	{
		admin.POST("", h.CreatePool)
		admin.POST("/:address/fund-quote", h.FundQuote)
		admin.POST("/:address/fund-nft", h.FundNFT)
		admin.POST("/:address/buy", h.Buy)
		admin.POST("/:address/sell", h.Sell)
		admin.POST("/:address/withdraw-nft", h.WithdrawNFT)
		admin.POST("/:address/withdraw-quote", h.WithdrawQuote)
		admin.POST("/:address/withdraw-fee", h.WithdrawFee)
		admin.POST("/:address/delta", h.ChangeDelta)
		admin.POST("/:address/fee", h.ChangeFee)
		admin.POST("/:address/spot-price", h.ChangeSpotPrice)
		admin.DELETE("/:address", h.ClosePool)
	}
}

func respond(c *gin.Context, body interface{}, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrValidation, "invalid request body", err))
		return false
	}
	return true
}

func address(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func callerOf(c *gin.Context) (common.Address, bool) {
	caller, ok := auth.Caller(c)
	if !ok {
		_ = c.Error(apperrors.Authorization("caller not authenticated"))
	}
	return caller, ok
}

func poolParam(c *gin.Context) (common.Address, bool) {
	poolAddr, ok := address(c.Param("address"))
	if !ok {
		_ = c.Error(apperrors.Validation("invalid pool address"))
	}
	return poolAddr, ok
}

func target(c *gin.Context) (common.Address, common.Address, bool) {
	caller, ok := callerOf(c)
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	poolAddr, ok := poolParam(c)
	return caller, poolAddr, ok
}

func mintBody(c *gin.Context) (common.Address, bool) {
	var req mintRequest
	if !bind(c, &req) {
		return common.Address{}, false
	}
	mint, ok := address(req.Mint)
	if !ok {
		_ = c.Error(apperrors.Validation("mint must be an address"))
	}
	return mint, ok
}
