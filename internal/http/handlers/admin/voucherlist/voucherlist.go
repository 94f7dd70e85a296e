// Package voucherlist реализует HTTP-обработчик списка ваучеров.
package voucherlist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/models"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	ListVouchers(ctx context.Context) ([]*models.SubscriptionVoucher, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Item один ваучер в ответе.
type Item struct {
	Code         string  `json:"code"`
	Kind         string  `json:"kind"`
	Tier         string  `json:"tier"`
	DurationDays *int    `json:"duration_days"`
	MaxUses      int     `json:"max_uses"`
	Uses         int     `json:"uses"`
	Active       bool    `json:"active"`
	Note         *string `json:"note"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.voucherlist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	vouchers, err := h.service.ListVouchers(r.Context())
	if err != nil {
		log.Error("failed to list vouchers", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list vouchers"))
		return
	}

	items := make([]Item, 0, len(vouchers))
	for _, v := range vouchers {
		items = append(items, Item{
			Code:         v.Code,
			Kind:         v.Kind,
			Tier:         v.Tier,
			DurationDays: v.DurationDays,
			MaxUses:      v.MaxUses,
			Uses:         v.Uses,
			Active:       v.Active,
			Note:         v.Note,
		})
	}
	render.JSON(w, r, response.StatusOKWithData(items))
}
