// Package whitelistview реализует HTTP-обработчик просмотра текущего
// вайтлиста игрового сервера.
package whitelistview

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	ListWhitelist(ctx context.Context) ([]string, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.whitelistview"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	usernames, err := h.service.ListWhitelist(r.Context())
	if err != nil {
		log.Error("failed to list server whitelist", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("game server gateway error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"usernames": usernames,
	}))
}
