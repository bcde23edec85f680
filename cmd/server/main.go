package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neargo/config"
	"neargo/internal/index"
	"neargo/internal/ingest"
	"neargo/internal/presence"
	"neargo/internal/query"
	"neargo/internal/router"
	"neargo/internal/watch"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded .env")
	}
	cfg := config.Load()

	grid := index.NewGrid(cfg.Geo.CellSizeMeters)
	reg := presence.NewRegistry(cfg.Presence, grid)
	engine := query.NewEngine(cfg.Geo, grid, reg)
	hub := watch.NewHub(cfg.Watch, engine, cfg.Geo.MaxLimit)
	pipeline := ingest.NewPipeline(cfg.Ingest, reg, hub)
	sweeper := presence.NewSweeper(reg, cfg.Presence.SweepInterval)

	hub.Start()
	sweeper.Start()

	engineHTTP := router.Setup(cfg, reg, engine, hub, pipeline)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engineHTTP,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	sweeper.Stop()
	hub.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	fmt.Println("server stopped")
}
