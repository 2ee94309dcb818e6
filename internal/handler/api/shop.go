package api

import (
	"errors"
	"net/http"
	"strconv"

	reqdto "flashsale-starter/internal/handler/dto/request"
	resdto "flashsale-starter/internal/handler/dto/response"
	"flashsale-starter/internal/handler/httperr"
	"flashsale-starter/internal/usecase/commands"
	"flashsale-starter/internal/usecase/queries"

	"github.com/gin-gonic/gin"
)

type ShopHandler struct {
	shopQueries  queries.ShopQueries
	shopCommands commands.ShopCommands
}

func NewShopHandler(shopQueries queries.ShopQueries, shopCommands commands.ShopCommands) *ShopHandler {
	return &ShopHandler{
		shopQueries:  shopQueries,
		shopCommands: shopCommands,
	}
}

func (h *ShopHandler) GetShop(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid shop id", nil)
		return
	}

	s, err := h.shopQueries.GetByID(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, queries.ErrShopNotFound):
			httperr.AbortWithError(c, http.StatusNotFound, err, "Shop not found", nil)
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		}
		return
	}

	c.JSON(http.StatusOK, resdto.NewShopResponse(s))
}

func (h *ShopHandler) UpdateShop(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid shop id", nil)
		return
	}

	var req reqdto.UpdateShopRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, bindErr, "Invalid request format", nil)
		return
	}

	if err := h.shopCommands.Update(c.Request.Context(), req.ToDomain(id)); err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context, param string) (int64, error) {
	return strconv.ParseInt(c.Param(param), 10, 64)
}
