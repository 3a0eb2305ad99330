package main

import (
    "context"
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/nkosimano/chartedart-api/internal/cache"
    "github.com/nkosimano/chartedart-api/internal/clock"
    "github.com/nkosimano/chartedart-api/internal/config"
    "github.com/nkosimano/chartedart-api/internal/database"
    "github.com/nkosimano/chartedart-api/internal/engine"
    "github.com/nkosimano/chartedart-api/internal/handler"
    "github.com/nkosimano/chartedart-api/internal/queue"
    "github.com/nkosimano/chartedart-api/internal/repository"
    "github.com/nkosimano/chartedart-api/internal/router"
    "github.com/nkosimano/chartedart-api/internal/sweeper"
)

func main() {
    // .env is optional; real deployments inject the environment directly.
    _ = godotenv.Load()
    cfg := config.Load()
    cacheCfg := config.LoadCacheConfig()

    db, err := database.Open(context.Background(), cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    // A nil Redis client is fine: the cache layer degrades to always-miss
    // and every listing read computes against MySQL.
    var cacheStore *cache.Store
    if cacheCfg.Enabled {
        cacheStore = cache.New(config.NewRedisClient())
    } else {
        cacheStore = cache.New(nil)
    }

    store := repository.NewReservationStore(db)
    movements := repository.NewMovementRepo(db)
    clk := clock.NewSystem()
    eng := engine.New(store, clk, engine.WithWindow(cfg.ReservationWindow))

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // Background expiry sweep; the engine call it makes is idempotent, so
    // a restart mid-sweep is harmless.
    sw := sweeper.New(eng, clk, sweeper.WithInterval(cfg.SweepInterval))
    go sw.Run(ctx)

    // Reservation event consumer; reconnects forever on its own.
    go func() {
        if err := queue.StartReservationConsumer(); err != nil {
            log.Printf("events-consumer: stopped: %v", err)
        }
    }()

    e := echo.New()
    e.HideBanner = true
    router.RegisterRoutes(e,
        handler.NewMovementHandler(movements, cacheStore, cacheCfg),
        handler.NewReservationHandler(eng, movements),
        cfg.JWTSecret,
    )

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s, window=%s, sweep=%s)", addr, cfg.Env, cfg.ReservationWindow, cfg.SweepInterval)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
