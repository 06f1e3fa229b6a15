package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPServer wraps the listener with graceful shutdown.
type HTTPServer struct {
	srv *http.Server
}

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start blocks until the listener fails or Shutdown is called. An
// empty certFile runs plain HTTP.
func (s *HTTPServer) Start(certFile, keyFile string) error {
	var err error
	if certFile != "" && keyFile != "" {
		err = s.srv.ListenAndServeTLS(certFile, keyFile)
	} else {
		err = s.srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
