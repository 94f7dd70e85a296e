// Package inviterevoke реализует HTTP-обработчик отзыва кода приглашения.
package inviterevoke

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	RevokeInvite(ctx context.Context, code string) error
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
	const op = "handlers.admin.inviterevoke"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	code := chi.URLParam(r, "code")
	if code == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("code is required"))
		return
	}

	if err := h.service.RevokeInvite(r.Context(), code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("invite code not found"))
			return
		}
		log.Error("failed to revoke invite code", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to revoke invite code"))
		return
	}

	log.Info("invite code revoked", slog.String("code", code))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"code": code,
	}))
}
