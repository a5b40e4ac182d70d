package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ChainInfo is the node state reported by Health.
type ChainInfo interface {
	ChainID() uint64
	BlockNumber() uint64
}

type Handler struct{ chain ChainInfo }

func NewHandler(chain ChainInfo) *Handler { return &Handler{chain: chain} }

func (h *Handler) Health(c echo.Context) error {
	body := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if h.chain != nil {
		body["chainId"] = h.chain.ChainID()
		body["blockNumber"] = h.chain.BlockNumber()
	}
	return c.JSON(http.StatusOK, body)
}
