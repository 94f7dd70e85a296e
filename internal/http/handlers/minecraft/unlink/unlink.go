// Package unlink реализует HTTP-обработчик отвязки Minecraft-аккаунта.
package unlink

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/craftgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/services/minecraft"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	Unlink(ctx context.Context, userUID string) error
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
	const op = "handlers.minecraft.unlink"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	if err := h.service.Unlink(r.Context(), userUID); err != nil {
		if errors.Is(err, minecraft.ErrNotLinked) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("minecraft account is not linked"))
			return
		}
		log.Error("failed to unlink minecraft account", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to unlink minecraft account"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "minecraft account unlinked",
	}))
}
