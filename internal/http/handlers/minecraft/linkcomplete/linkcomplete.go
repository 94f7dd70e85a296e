// Package linkcomplete реализует HTTP-обработчик завершения привязки.
// Запрос приходит от плагина игрового сервера и авторизуется общим секретом
// шлюза, а не JWT пользователя.
package linkcomplete

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/services/minecraft"
)

const secretHeader = "X-Control-Secret"

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	CompleteLink(ctx context.Context, code, mojangUUID, mcUsername string) error
}

// Request — входные данные завершения привязки.
type Request struct {
	Code       string `json:"code" validate:"required"`
	MojangUUID string `json:"mojang_uuid" validate:"required,uuid"`
	MCUsername string `json:"mc_username" validate:"required,min=3,max=16"`
}

type Handler struct {
	log      *slog.Logger
	service  Service
	secret   string
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		secret:   secret,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.minecraft.linkcomplete"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	got := r.Header.Get(secretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		log.Error("invalid control secret")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid control secret"))
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

	if err := h.service.CompleteLink(r.Context(), req.Code, req.MojangUUID, req.MCUsername); err != nil {
		if errors.Is(err, minecraft.ErrInvalidLinkCode) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("invalid or expired link code"))
			return
		}
		log.Error("failed to complete link", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to complete link"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"mc_username": req.MCUsername,
	}))
}
