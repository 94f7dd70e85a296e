// Package invitecreate реализует HTTP-обработчик выпуска кода приглашения.
package invitecreate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/craftgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/services/admin"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	CreateInvite(ctx context.Context, params admin.CreateInviteParams) (string, error)
}

// Request — входные данные выпуска кода приглашения.
// Пустой Code означает автогенерацию.
type Request struct {
	Code      string     `json:"code"`
	MaxUses   int        `json:"max_uses" validate:"min=0,max=1000"`
	ExpiresAt *time.Time `json:"expires_at"`
	Note      *string    `json:"note"`
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
	const op = "handlers.admin.invitecreate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	adminUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

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

	code, err := h.service.CreateInvite(r.Context(), admin.CreateInviteParams{
		Code:      req.Code,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Note:      req.Note,
		CreatedBy: adminUID,
	})
	if err != nil {
		log.Error("failed to create invite code", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to create invite code"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"code": code,
	}))
}
