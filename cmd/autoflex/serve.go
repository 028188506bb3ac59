package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/samcharles93/autoflex/internal/api"
	"github.com/samcharles93/autoflex/internal/logger"
)

const readHeaderTimeout = 10 * time.Second

// serve exposes the introspection API until ctx is cancelled.
func serve(ctx context.Context, addr string, server *api.Server, log logger.Logger) error {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	server.Register(e)
	log.Info("starting introspection server", "address", addr)
	sc := echo.StartConfig{
		Address: addr,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = readHeaderTimeout
			return nil
		},
	}
	return sc.Start(ctx, e)
}
