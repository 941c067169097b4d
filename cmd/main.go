package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	v1handlers "github.com/kbconsole/answerrelay/internal/api/v1/handlers"
	v1mware "github.com/kbconsole/answerrelay/internal/api/v1/middleware"
	"github.com/kbconsole/answerrelay/internal/config"
	"github.com/kbconsole/answerrelay/internal/services"
	"github.com/kbconsole/answerrelay/pkg/httpext"
	"github.com/kbconsole/answerrelay/pkg/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	logger.Init()

	svcs, err := services.InitializeServices()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svcs.Close()

	srv := &http.Server{
		Addr:              ":" + config.GetPort(),
		Handler:           setupRouter(svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}

	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("Start shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// Hijacked sockets are not tracked by Shutdown; their turns end when
		// the process exits.
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
			_ = srv.Close()
		}
		log.Info().Msg("Server stopped")
	}
}

func setupRouter(svcs *services.Services) *mux.Router {
	r := mux.NewRouter()
	r.Use(v1mware.Logging)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		v1handlers.HandleHealth(svcs, w, req)
	}).Methods("GET")

	v1handlers.RegisterV1Routes(r, svcs)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httpext.JsonError(w, "Not found", http.StatusNotFound)
	})
	return r
}
