package api

import (
	"errors"
	"net/http"
	"time"

	resdto "flashsale-starter/internal/handler/dto/response"
	"flashsale-starter/internal/handler/httperr"
	"flashsale-starter/internal/handler/middleware"
	"flashsale-starter/internal/pkg/config"
	"flashsale-starter/internal/pkg/errs"
	"flashsale-starter/internal/usecase/commands"

	"github.com/gin-gonic/gin"
)

var errMissingUser = errs.New("authenticated user missing from context")

type VoucherHandler struct {
	seckill   commands.SeckillCommands
	shops     commands.ShopCommands
	warmUpTTL time.Duration
}

func NewVoucherHandler(seckill commands.SeckillCommands, shops commands.ShopCommands, cfg config.CacheConfig) *VoucherHandler {
	return &VoucherHandler{
		seckill:   seckill,
		shops:     shops,
		warmUpTTL: cfg.LogicalTTL,
	}
}

// Seckill answers as soon as admission settles; the durable commit
// happens asynchronously and the returned order id is the handle to it.
func (h *VoucherHandler) Seckill(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusInternalServerError, errMissingUser, "Internal server error", nil)
		return
	}

	voucherID, err := parseID(c, "id")
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid voucher id", nil)
		return
	}

	orderID, err := h.seckill.Purchase(c.Request.Context(), userID, voucherID)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrSoldOut):
			httperr.AbortWithError(c, http.StatusGone, err, "Voucher sold out", nil)
		case errors.Is(err, commands.ErrDuplicatePurchase):
			httperr.AbortWithError(c, http.StatusConflict, err, "Voucher already purchased", nil)
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		}
		return
	}

	c.JSON(http.StatusCreated, resdto.SeckillOrderResponse{OrderID: orderID})
}

// SeedStock is the operational warm-up endpoint: it copies durable
// stock into the admission counter before a sale opens.
func (h *VoucherHandler) SeedStock(c *gin.Context) {
	voucherID, err := parseID(c, "id")
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid voucher id", nil)
		return
	}

	if err := h.seckill.SeedStock(c.Request.Context(), voucherID); err != nil {
		switch {
		case errors.Is(err, commands.ErrVoucherNotFound):
			httperr.AbortWithError(c, http.StatusNotFound, err, "Voucher not found", nil)
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// WarmUpShop preloads a logical-expiry cache entry for a hot shop.
func (h *VoucherHandler) WarmUpShop(c *gin.Context) {
	shopID, err := parseID(c, "id")
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid shop id", nil)
		return
	}

	if err := h.shops.WarmUp(c.Request.Context(), shopID, h.warmUpTTL); err != nil {
		switch {
		case errors.Is(err, commands.ErrShopNotFound):
			httperr.AbortWithError(c, http.StatusNotFound, err, "Shop not found", nil)
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		}
		return
	}

	c.Status(http.StatusNoContent)
}
