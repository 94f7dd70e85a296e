// Package players реализует HTTP-обработчик списка игроков сообщества.
package players

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/models"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	ListPlayers(ctx context.Context, limit, offset int) ([]*models.PlayerInfo, error)
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
	const op = "handlers.admin.players"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	playersList, err := h.service.ListPlayers(r.Context(), limit, offset)
	if err != nil {
		log.Error("failed to list players", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list players"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(playersList))
}
