// Package invitelist реализует HTTP-обработчик списка кодов приглашений.
package invitelist

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
	ListInvites(ctx context.Context) ([]*models.InviteCode, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Item один код приглашения в ответе.
type Item struct {
	Code      string  `json:"code"`
	MaxUses   int     `json:"max_uses"`
	Uses      int     `json:"uses"`
	Active    bool    `json:"active"`
	ExpiresAt *string `json:"expires_at"`
	Note      *string `json:"note"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.invitelist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	codes, err := h.service.ListInvites(r.Context())
	if err != nil {
		log.Error("failed to list invite codes", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list invite codes"))
		return
	}

	items := make([]Item, 0, len(codes))
	for _, c := range codes {
		item := Item{
			Code:    c.Code,
			MaxUses: c.MaxUses,
			Uses:    c.Uses,
			Active:  c.Active,
			Note:    c.Note,
		}
		if c.ExpiresAt != nil {
			s := c.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
			item.ExpiresAt = &s
		}
		items = append(items, item)
	}
	render.JSON(w, r, response.StatusOKWithData(items))
}
