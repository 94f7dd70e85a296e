// Package link реализует HTTP-обработчик выдачи кода привязки Minecraft-аккаунта.
package link

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/craftgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	IssueLinkCode(ctx context.Context, userUID string) (string, error)
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
	const op = "handlers.minecraft.link"

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

	code, err := h.service.IssueLinkCode(r.Context(), userUID)
	if err != nil {
		log.Error("failed to issue link code", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to issue link code"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"code": code,
	}))
}
