package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lidarstack/pc-server/api"
	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/log"
)

func runServer(restApi *api.RestApi) error {
	router := mux.NewRouter()
	restApi.MountRoutes(router)

	if config.Keys.Stats {
		router.Handle("/metrics", promhttp.Handler())
	}

	handler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet}),
	)(handlers.CompressHandler(handlers.RecoveryHandler()(router)))

	server := &http.Server{
		Addr:         flagAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", flagAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			done <- err
			return
		}
		done <- nil
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		return err
	case sig := <-sigs:
		log.Infof("shutting down on %s", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		return <-done
	}
}
