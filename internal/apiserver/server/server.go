/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package server runs the api server: it registers the handlers, serves them behind the
// request middleware and shuts down when its context ends.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"

	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/common"
	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/middleware"
	"github.com/llm-d-incubation/llm-batch-engine/internal/config"
	utls "github.com/llm-d-incubation/llm-batch-engine/internal/util/tls"
)

type Server struct {
	config  *config.ServerConfig
	handler http.Handler
}

func New(cfg *config.ServerConfig, handlers ...common.ApiHandler) *Server {
	mux := http.NewServeMux()
	for _, h := range handlers {
		common.RegisterHandler(mux, h)
	}
	return &Server{config: cfg, handler: middleware.RequestMiddleware(mux)}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	certs := s.config.TLS
	if certs == nil || certs.IsEmpty() {
		return nil, nil
	}
	return utls.GetTlsConfig(utls.LOAD_TYPE_SERVER, false,
		utls.JoinCertPath(certs.Dir, certs.CertFile),
		utls.JoinCertPath(certs.Dir, certs.KeyFile),
		utls.JoinCertPath(certs.Dir, certs.CaCertFile))
}

// Start serves until ctx ends, then drains in-flight requests for up to the shutdown
// timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := klog.FromContext(ctx)

	tlsConf, err := s.tlsConfig()
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to load server certificates: %w", err)
	}
	if tlsConf != nil {
		ln = tls.NewListener(ln, tlsConf)
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "address", ln.Addr().String(), "tls", tlsConf != nil)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down api server", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
