package http

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RPCNamespace prefixes every ledger method name.
const RPCNamespace = "ledger"

// NewServer wires health, metrics and the JSON-RPC endpoint into one echo
// instance. The returned rpc.Server must be stopped on shutdown.
func NewServer(h *Handler, api *LedgerAPI) (*echo.Echo, *rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(RPCNamespace, api); err != nil {
		return nil, nil, fmt.Errorf("register rpc api: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger(), middleware.Recover())

	// routes
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/rpc", echo.WrapHandler(srv))
	return e, srv, nil
}
