// Package voucherredeem реализует HTTP-обработчик погашения ваучера подписки.
package voucherredeem

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
	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/services/voucher"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	Redeem(ctx context.Context, userUID, code string) (*models.Subscription, error)
}

// Request — входные данные для погашения ваучера.
type Request struct {
	Code string `json:"code" validate:"required"`
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
	const op = "handlers.voucherredeem"

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

	sub, err := h.service.Redeem(r.Context(), userUID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, voucher.ErrAlreadySubscribed):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("subscription already active"))
		case errors.Is(err, repository.ErrCodeExhausted):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("voucher is invalid or exhausted"))
		default:
			log.Error("failed to redeem voucher", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to redeem voucher"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status":             string(sub.Status),
		"tier":               sub.Tier,
		"is_lifetime":        sub.IsLifetime,
		"current_period_end": sub.CurrentPeriodEnd,
	}))
}
