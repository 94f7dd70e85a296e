// Package nickname реализует HTTP-обработчик смены отображаемого ника.
package nickname

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/craftgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/services/minecraft"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	SetNickname(ctx context.Context, userUID, nickname string) error
}

// Request — входные данные смены ника.
type Request struct {
	Nickname string `json:"nickname" validate:"required,min=1,max=32"`
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.minecraft.nickname"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.SetNickname(r.Context(), userUID, req.Nickname); err != nil {
		if errors.Is(err, minecraft.ErrNotLinked) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("minecraft account is not linked"))
			return
		}
		log.Error("failed to set nickname", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to set nickname"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"nickname": req.Nickname,
	}))
}
