package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flashsale-starter/internal/handler/api"
	"flashsale-starter/internal/handler/middleware"
	"flashsale-starter/internal/pkg/config"
)

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Mw      []gin.HandlerFunc
}

func NewRouter(engine *gin.Engine, cfg config.Config, shopHandler *api.ShopHandler, voucherHandler *api.VoucherHandler) {
	setupMiddleware(engine, cfg)
	setupRoutes(engine, shopHandler, voucherHandler)
}

func setupMiddleware(engine *gin.Engine, cfg config.Config) {
	// Recovery must be first (outermost) to catch panics from all other middleware
	engine.Use(middleware.CustomRecovery())
	engine.Use(middleware.NewCORSMiddleware(cfg.CORS))
	engine.Use(middleware.LoggingMiddleware(cfg.Log))
	engine.Use(middleware.ErrorHandler())
}

func setupRoutes(engine *gin.Engine, shopHandler *api.ShopHandler, voucherHandler *api.VoucherHandler) {
	engine.GET("/health", healthCheck)

	apiGroup := engine.Group("/api")
	{
		shops := apiGroup.Group("/shops")
		{
			addRoutes(shops, []route{
				{Method: http.MethodGet, Path: "/:id", Handler: shopHandler.GetShop},
				{Method: http.MethodPut, Path: "/:id", Handler: shopHandler.UpdateShop},
				{Method: http.MethodPost, Path: "/:id/warmup", Handler: voucherHandler.WarmUpShop},
			})
		}

		vouchers := apiGroup.Group("/vouchers")
		{
			addRoutes(vouchers, []route{
				{Method: http.MethodPost, Path: "/:id/stock-warmup", Handler: voucherHandler.SeedStock},
			})

			purchase := vouchers.Group("")
			purchase.Use(middleware.RequirePrincipal())
			addRoutes(purchase, []route{
				{Method: http.MethodPost, Path: "/:id/seckill", Handler: voucherHandler.Seckill},
			})
		}
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Service is healthy",
	})
}

func addRoutes(group *gin.RouterGroup, routes []route) {
	for _, r := range routes {
		handlers := make([]gin.HandlerFunc, 0, len(r.Mw)+1)
		handlers = append(handlers, r.Mw...)
		handlers = append(handlers, r.Handler)
		group.Handle(r.Method, r.Path, handlers...)
	}
}
