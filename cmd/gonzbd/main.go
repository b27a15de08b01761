package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/spf13/cobra"

	"gonzbd/internal/app"
	"gonzbd/internal/config"
	"gonzbd/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gonzbd",
	Short: "gonzbd is a Usenet download orchestration daemon",
	Long:  `A priority-queued, multi-server NNTP download daemon with DirectUnpack and verify/repair/extract/move/cleanup post-processing.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the daemon's config file")
}

func runDaemon() {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	level := logger.ParseLevel(cfg.Log.Level)
	lg, err := logger.New(cfg.Log.Path, level, cfg.Log.IncludeStdout)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	ctxApp, err := app.NewContext(cfg, lg)
	if err != nil {
		log.Fatalf("app init error: %v", err)
	}
	defer ctxApp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctxApp.Start(ctx); err != nil {
		log.Fatalf("startup error: %v", err)
	}

	e := newStatusServer(ctxApp)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		lg.Info("status/SSE edge listening on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			lg.Error("status server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	lg.Info("shutdown signal received, draining in-flight jobs")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = e.Shutdown(shutdownCtx)

	ctxApp.Wait()
	lg.Info("shutdown complete")
}

// newStatusServer builds the thin, read-only echo surface over the Event
// Bus and Priority Queue: external consumers observe state here, they
// never mutate it (spec.md §6 "External bridges... consume events
// read-only").
func newStatusServer(ctxApp *app.Context) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			ctxApp.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.GET("/status", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"queue_len":    ctxApp.Queue.Len(),
			"queue_paused": ctxApp.Queue.Paused(),
			"unlimited":    ctxApp.Limiter.Unlimited(),
		})
	})

	e.GET("/events", handleEventStream(ctxApp))

	return e
}

// handleEventStream bridges one Event Bus subscription to an SSE response,
// one line of JSON per event, until the client disconnects.
func handleEventStream(ctxApp *app.Context) echo.HandlerFunc {
	return func(c *echo.Context) error {
		sub := ctxApp.Bus.Subscribe()
		defer sub.Unsubscribe()

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set("Cache-Control", "no-cache")
		res.Header().Set("Connection", "keep-alive")
		res.WriteHeader(http.StatusOK)

		for {
			select {
			case <-c.Request().Context().Done():
				return nil
			case ev, ok := <-sub.Events:
				if !ok {
					return nil
				}
				data, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				fmt.Fprintf(res, "data: %s\n\n", data)
				res.Flush()
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
