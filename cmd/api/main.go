package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"halo-bridge/internal/commerce"
	"halo-bridge/internal/config"
	"halo-bridge/internal/db"
	"halo-bridge/internal/domain"
	"halo-bridge/internal/events"
	"halo-bridge/internal/export"
	"halo-bridge/internal/httpserver"
	"halo-bridge/internal/metrics"
	"halo-bridge/internal/shipping"
	"halo-bridge/internal/state"
	"halo-bridge/internal/tax"
	"halo-bridge/internal/webhook"
)

// buildStrategies assembles the carrier strategies in their aggregation
// order: USPS removal, warehouse pickup, FedEx, courier, UPS last.
func buildStrategies(cfg *config.Config, lookups state.Store, logger *log.Logger) []shipping.Strategy {
	return []shipping.Strategy{
		shipping.USPSRemoval{},
		shipping.WarehousePickup{Title: cfg.Warehouse.PickupTitle},
		shipping.FedEx{
			Code:          cfg.FedEx.Code,
			Methods:       cfg.FedEx.Methods,
			HandlingFee:   cfg.FedEx.HandlingFee,
			CustomerGroup: cfg.FedEx.CustomerGroup,
			POGroup:       cfg.FedEx.POGroup,
		},
		shipping.Courier{Group: cfg.Courier.Group},
		shipping.NewUPS(shipping.UPSConfig{
			ServiceDomain:       cfg.UPS.ServiceDomain,
			RateEndpoint:        cfg.UPS.RateEndpoint,
			SurepostEndpoint:    cfg.UPS.SurepostEndpoint,
			ClientID:            cfg.UPS.ClientID,
			ClientSecret:        cfg.UPS.ClientSecret,
			ShipperNumber:       cfg.UPS.ShipperNumber,
			RequestOption:       cfg.UPS.RequestOption,
			DomesticPayPct:      cfg.UPS.DomesticPayPct,
			InternationalPayPct: cfg.UPS.InternationalPayPct,
			CacheSalt:           cfg.UPS.CacheSalt,
		}, nil, lookups, logger),
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()

	redisClient, err := state.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close()
	lookups := state.NewRedis(redisClient, logger)

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()
	audit := state.NewPostgres(pool)

	verifier, err := webhook.NewVerifier(cfg.Webhook.PublicKeyPEM)
	if err != nil {
		logger.Fatalf("init webhook verifier: %v", err)
	}

	if oauth1, bearer := cfg.CommerceAuthMode(); oauth1 == bearer {
		logger.Fatalf("commerce auth: configure exactly one of OAuth1 and bearer credentials")
	}
	client, err := commerce.New(cfg.Commerce.BaseURL, commerce.Auth{
		ConsumerKey:       cfg.Commerce.ConsumerKey,
		ConsumerSecret:    cfg.Commerce.ConsumerSecret,
		AccessToken:       cfg.Commerce.AccessToken,
		AccessTokenSecret: cfg.Commerce.AccessTokenSecret,
		BearerToken:       cfg.Commerce.BearerToken,
		IMSOrgID:          cfg.Commerce.IMSOrgID,
		IMSClientID:       cfg.Commerce.IMSClientID,
	}, logger, cfg.DebugLogging())
	if err != nil {
		logger.Fatalf("init commerce client: %v", err)
	}
	groups := commerce.NewGroupCache(client, lookups)

	aggregator := shipping.NewAggregator(
		buildStrategies(cfg, lookups, logger),
		groups,
		shipping.NewProductRestrictions(client),
		logger,
		func(strategy string) { metrics.CarrierFailures.WithLabelValues(strategy).Inc() },
	)

	vertex := tax.NewVertex(cfg.Vertex.Endpoint, cfg.Vertex.TrustedID, tax.VertexSeller{
		Company:    cfg.Vertex.SellerCompany,
		Street:     cfg.Vertex.SellerStreet,
		City:       cfg.Vertex.SellerCity,
		MainDiv:    cfg.Vertex.SellerRegion,
		PostalCode: cfg.Vertex.SellerPostal,
	}, cfg.Vertex.ProductCodes, nil)
	zonos := tax.NewZonos(cfg.Zonos.APIURL, cfg.Zonos.ServiceToken, lookups, nil)
	taxes := tax.NewRouter(vertex, zonos, cfg.Tax.ExemptClasses, logger)

	enricher := export.NewEnricher(groups, cfg, logger)
	dispatcher := export.NewDispatcher(enricher,
		export.BuilderSettings{
			OrderIDPrefix:  cfg.Export.OrderIDPrefix,
			SupplierID:     cfg.Export.SupplierID,
			BuyerSystemID:  cfg.Export.BuyerSystemID,
			SenderIdentity: cfg.Export.SenderIdentity,
			SharedSecret:   cfg.Export.SharedSecret,
			UserAgent:      cfg.Export.UserAgent,
			DeploymentMode: cfg.Export.DeploymentMode,
			PaymentTerm:    cfg.Export.PaymentTerm,
			UnitOfMeasure:  cfg.Export.UnitOfMeasure,
			Methods:        domain.DefaultMethods,
		},
		export.DispatcherSettings{
			Endpoint:      cfg.ERP.Endpoint,
			SuccessStatus: cfg.ERP.SuccessStatus,
			LogParams:     cfg.ERP.LogParams,
		},
		audit, client, nil, logger)

	srv, err := httpserver.New(cfg.HTTP.Addr, logger, pool, httpserver.Deps{
		Verifier:   verifier,
		Rates:      aggregator,
		Taxes:      taxes,
		Dispatcher: dispatcher,
		Groups:     groups,
		Quote: httpserver.QuoteRules{
			POGroup:       cfg.Quote.POGroup,
			EmployeeGroup: cfg.Quote.EmployeeGroup,
			EmployeeSKUs:  cfg.Quote.EmployeeSKUs,
		},
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.Kafka.Enabled {
		consumer := events.NewConsumer(events.Settings{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			DLQTopic: cfg.Kafka.DLQTopic,
			GroupID:  cfg.Kafka.GroupID,
		}, dispatcher, logger)
		go consumer.Run(consumerCtx)
		logger.Printf("consuming order events from %s", cfg.Kafka.Topic)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	stopConsumer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
