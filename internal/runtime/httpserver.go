package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	loggingpkg "github.com/drblury/framepub/internal/runtime/logging"
)

const httpShutdownTimeout = 5 * time.Second

// httpServer serves the metrics and stats endpoints of a service or listener.
type httpServer struct {
	mux    *http.ServeMux
	server *http.Server
	ln     net.Listener
	logger loggingpkg.ServiceLogger
}

func newHTTPServer(logger loggingpkg.ServiceLogger, ln net.Listener) *httpServer {
	return &httpServer{mux: http.NewServeMux(), ln: ln, logger: logger}
}

func (h *httpServer) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// Start listens on port unless a listener was supplied, then serves in the
// background.
func (h *httpServer) Start(port int) error {
	if h.ln == nil {
		addr := ":" + strconv.Itoa(port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		h.ln = ln
	}

	addr := h.ln.Addr().String()
	h.server = &http.Server{Handler: h.mux, ReadHeaderTimeout: 5 * time.Second}
	h.logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server stopped", err, loggingpkg.LogFields{"address": addr})
		}
	}(h.server, h.ln)
	return nil
}

// Addr returns the listen address, or "" before Start.
func (h *httpServer) Addr() string {
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

// Close shuts the server down, or closes an unused listener.
func (h *httpServer) Close() error {
	if h.server == nil {
		if h.ln != nil {
			return h.ln.Close()
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	return h.server.Shutdown(ctx)
}
