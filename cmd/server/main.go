package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/captcha"
	"github.com/inkfolio/commission-backend/internal/config"
	"github.com/inkfolio/commission-backend/internal/database"
	"github.com/inkfolio/commission-backend/internal/gateway"
	"github.com/inkfolio/commission-backend/internal/handler"
	"github.com/inkfolio/commission-backend/internal/middleware"
	"github.com/inkfolio/commission-backend/internal/pricing"
	"github.com/inkfolio/commission-backend/internal/queue"
	"github.com/inkfolio/commission-backend/internal/repository"
	"github.com/inkfolio/commission-backend/internal/router"
	queue_publisher "github.com/inkfolio/commission-backend/internal/service"
)

func main() {
	// .env is a development convenience; in deployment the variables come
	// from the environment itself.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs the public response cache only; a nil client disables it.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, response cache disabled")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	orders := repository.NewOrderRepo(db)
	tickets := repository.NewTicketRepo(db)
	audit := repository.NewActivityRepo(db)
	limits := repository.NewRateLimitRepo(db)
	gallery := repository.NewGalleryRepo(db)
	pricingRepo := repository.NewPricingRepo(db)

	engine := pricing.NewEngine(pricingRepo, nil)
	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)
	verifier := captcha.NewVerifier(cfg)
	guard := middleware.NewGuard(cfg, users, tokens, audit)

	paymentHandler := handler.NewPaymentHandler(cfg, orders, tickets, gw, audit,
		func(ctx context.Context, ev queue.OrderPaidEvent) {
			// Best-effort: a broker outage must not fail a verified payment.
			_ = queue_publisher.PublishOrderPaid(ctx, ev)
		})

	cacheCfg := config.LoadCacheConfig()
	purge := func(ctx context.Context, path string) {
		if err := middleware.PurgeCache(ctx, cacheCfg, rdb, path); err != nil {
			log.Printf("cache purge %s: %v", path, err)
		}
	}

	deps := router.Deps{
		Guard:    guard,
		Limiter:  limits,
		CacheCfg: cacheCfg,
		Redis:    rdb,

		Auth:    handler.NewAuthHandler(cfg, users, tokens, audit),
		Orders:  handler.NewOrderHandler(cfg, orders, engine, gw, verifier, audit),
		Payment: paymentHandler,
		Tickets: handler.NewTicketHandler(tickets, orders, audit),
		Gallery: handler.NewGalleryHandler(gallery, purge),
		Admin:   handler.NewAdminHandler(cfg, users, tokens, orders, tickets, audit, pricingRepo, engine, purge),
	}

	e := echo.New()
	router.RegisterRoutes(e, deps)

	// The consumer tails order.paid in the background and reconnects on
	// broker failures; it never takes the API down with it.
	go func() {
		if err := queue.StartPaymentConsumer(); err != nil {
			log.Printf("payment consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
