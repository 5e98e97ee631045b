package httpserver

import (
	"context"
	"errors"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"halo-bridge/internal/domain"
	"halo-bridge/internal/export"
	"halo-bridge/internal/shipping"
	"halo-bridge/internal/tax"
	"halo-bridge/internal/webhook"
)

type rateQuoter interface {
	Quote(ctx context.Context, rr shipping.RateRequest) ([]domain.Operation, error)
}

type taxCollector interface {
	Collect(ctx context.Context, quote *tax.Quote) ([]domain.Operation, error)
}

type orderDispatcher interface {
	Dispatch(ctx context.Context, order *domain.Order) (*export.Task, error)
}

type groupResolver interface {
	Resolve(ctx context.Context, groupID int) (string, error)
}

// QuoteRules configure the validate-quote webhook.
type QuoteRules struct {
	POGroup       string
	EmployeeGroup string
	EmployeeSKUs  []string
}

// Deps carries the wired components the router exposes over HTTP.
type Deps struct {
	Verifier   *webhook.Verifier
	Rates      rateQuoter
	Taxes      taxCollector
	Dispatcher orderDispatcher
	Groups     groupResolver
	Quote      QuoteRules
}

// buildRouter wires webhook and action routes.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if deps.Verifier == nil {
		return nil, errors.New("httpserver: webhook verifier is required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hooks := router.Group("/webhook", signatureMiddleware(deps.Verifier))
	hooks.POST("/shipping-rates", shippingRatesHandler(deps.Rates, logger))
	hooks.POST("/collect-taxes", collectTaxesHandler(deps.Taxes, logger))
	hooks.POST("/validate-quote", validateQuoteHandler(deps.Groups, deps.Quote, logger))

	router.POST("/api/order/export", orderExportHandler(deps.Dispatcher, logger))

	return router, nil
}
