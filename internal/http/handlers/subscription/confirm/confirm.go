// Package confirm реализует HTTP-обработчик подтверждения оплаты после
// возврата пользователя с платёжного виджета.
package confirm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/craftgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	ConfirmSubscription(ctx context.Context, userUID, billingSubID string) (models.Status, error)
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
	const op = "handlers.subscription.confirm"

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

	billingSubID := chi.URLParam(r, "billing_subscription_id")
	if billingSubID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("billing_subscription_id is required"))
		return
	}

	status, err := h.service.ConfirmSubscription(r.Context(), userUID, billingSubID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("subscription not found"))
			return
		}
		log.Error("failed to confirm subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to confirm subscription"))
		return
	}

	log.Info("subscription confirmed",
		slog.String("billing_subscription_id", billingSubID),
		slog.String("status", string(status)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status": string(status),
	}))
}
