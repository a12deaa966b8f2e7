package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
)

// APIConfig REST API server config
type APIConfig struct {
	// APIEndpoint address to listen on
	APIEndpoint string
	// ReadTimeout max duration to read a request
	ReadTimeout time.Duration
	// WriteTimeout max duration to write a response
	WriteTimeout time.Duration
	// ShutdownTimeout max duration to drain in-flight requests on shutdown
	ShutdownTimeout time.Duration
}

/*
Serve run the REST API server until the context is cancelled

	@param ctx context.Context - execution context
	@param cfg APIConfig - server config
	@param handler *Handler - API handler
*/
func Serve(ctx context.Context, cfg APIConfig, handler *Handler) error {
	server := &http.Server{
		Addr:              cfg.APIEndpoint,
		Handler:           handler.Router(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(handler.LogTags).WithField("listen", cfg.APIEndpoint).Info("Starting API server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed [%w]", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.WithFields(handler.LogTags).Info("Stopping API server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown failed [%w]", err)
		}
		return nil
	}
}
