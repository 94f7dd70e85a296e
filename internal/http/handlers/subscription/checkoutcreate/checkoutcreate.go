// Package checkoutcreate реализует HTTP-обработчик инициации оплаты подписки.
package checkoutcreate

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
	"github.com/magabrotheeeer/craftgate/internal/services/checkout"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	Checkout(ctx context.Context, userUID, tier string, amount int) (*checkout.Result, error)
}

// Request — входные данные для инициации оплаты.
// Amount 0 означает дефолтную цену тарифа.
type Request struct {
	Tier   string `json:"tier" validate:"required,oneof=member ultra"`
	Amount int    `json:"amount" validate:"min=0"`
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
	const op = "handlers.subscription.checkoutcreate"

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

	result, err := h.service.Checkout(r.Context(), userUID, req.Tier, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrUnknownPrice):
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("unknown tier or amount"))
		case errors.Is(err, checkout.ErrAlreadySubscribed):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("subscription already active"))
		default:
			log.Error("checkout failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to start checkout"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(result))
}
