// Package servercommand реализует HTTP-обработчик команд управления игровым
// сервером: объявления, kick, назначение группы и произвольные консольные
// команды через шлюз MC Control.
package servercommand

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/craftgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/craftgate/internal/http/response"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
)

// Действия, поддерживаемые обработчиком.
const (
	ActionAnnounce = "announce"
	ActionKick     = "kick"
	ActionSetGroup = "set_group"
	ActionCommand  = "command"
)

// Service описывает операции сервиса, нужные обработчику.
type Service interface {
	Announce(ctx context.Context, message string) error
	Kick(ctx context.Context, username, reason string) error
	SetGroup(ctx context.Context, username, group string) error
	RunCommand(ctx context.Context, adminUID, command string) (string, error)
}

// Request — входные данные команды управления сервером.
// Набор обязательных полей зависит от действия.
type Request struct {
	Action   string `json:"action" validate:"required,oneof=announce kick set_group command"`
	Message  string `json:"message"`
	Username string `json:"username"`
	Reason   string `json:"reason"`
	Group    string `json:"group"`
	Command  string `json:"command"`
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
	const op = "handlers.admin.servercommand"

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

	var output string
	var err error
	switch req.Action {
	case ActionAnnounce:
		if req.Message == "" {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("message is required for announce"))
			return
		}
		err = h.service.Announce(r.Context(), req.Message)
	case ActionKick:
		if req.Username == "" {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("username is required for kick"))
			return
		}
		err = h.service.Kick(r.Context(), req.Username, req.Reason)
	case ActionSetGroup:
		if req.Username == "" || req.Group == "" {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("username and group are required for set_group"))
			return
		}
		err = h.service.SetGroup(r.Context(), req.Username, req.Group)
	case ActionCommand:
		if req.Command == "" {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("command is required"))
			return
		}
		output, err = h.service.RunCommand(r.Context(), adminUID, req.Command)
	}

	if err != nil {
		log.Error("server command failed",
			slog.String("action", req.Action), sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("game server gateway error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"action": req.Action,
		"output": output,
	}))
}
