// Package admin реализует операции администратора сообщества: выпуск и отзыв
// кодов приглашений и ваучеров, список игроков и управление игровым сервером
// через шлюз MC Control.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/craftgate/internal/lib/code"
	"github.com/magabrotheeeer/craftgate/internal/models"
)

// ErrInvalidVoucherKind неизвестный вид ваучера.
var ErrInvalidVoucherKind = errors.New("invalid voucher kind")

// Repository определяет методы хранилища для операций администратора.
type Repository interface {
	CreateInviteCode(ctx context.Context, code models.InviteCode) error
	DeactivateInviteCode(ctx context.Context, code string) error
	ListInviteCodes(ctx context.Context) ([]*models.InviteCode, error)
	CreateVoucher(ctx context.Context, v models.SubscriptionVoucher) error
	ListVouchers(ctx context.Context) ([]*models.SubscriptionVoucher, error)
	ListPlayers(ctx context.Context, limit, offset int) ([]*models.PlayerInfo, error)
}

// ControlClient описывает операции шлюза игрового сервера,
// доступные администратору напрямую.
type ControlClient interface {
	Announce(ctx context.Context, message string) error
	Kick(ctx context.Context, username, reason string) error
	SetGroup(ctx context.Context, username, group string) error
	RunCommand(ctx context.Context, command string) (string, error)
	ListWhitelist(ctx context.Context) ([]string, error)
}

// CreateInviteParams параметры выпуска кода приглашения.
type CreateInviteParams struct {
	Code      string // пустое значение генерирует код автоматически
	MaxUses   int
	ExpiresAt *time.Time
	Note      *string
	CreatedBy string
}

// CreateVoucherParams параметры выпуска ваучера.
type CreateVoucherParams struct {
	Code         string // пустое значение генерирует код автоматически
	Kind         string
	Tier         string
	DurationDays *int
	MaxUses      int
	ExpiresAt    *time.Time
	Note         *string
	CreatedBy    string
}

// AdminService реализует операции администратора.
type AdminService struct {
	repo    Repository
	control ControlClient
	log     *slog.Logger
}

// New создает новый экземпляр AdminService.
func New(repo Repository, control ControlClient, log *slog.Logger) *AdminService {
	return &AdminService{
		repo:    repo,
		control: control,
		log:     log,
	}
}

// resolveCode возвращает нормализованный пользовательский код
// или генерирует новый.
func resolveCode(custom string) (string, error) {
	if custom != "" {
		return code.Normalize(custom), nil
	}
	return code.Generate()
}

// CreateInvite выпускает код приглашения и возвращает его значение.
func (s *AdminService) CreateInvite(ctx context.Context, params CreateInviteParams) (string, error) {
	inviteCode, err := resolveCode(params.Code)
	if err != nil {
		return "", err
	}
	if params.MaxUses <= 0 {
		params.MaxUses = 1
	}
	if err := s.repo.CreateInviteCode(ctx, models.InviteCode{
		Code:      inviteCode,
		MaxUses:   params.MaxUses,
		ExpiresAt: params.ExpiresAt,
		Note:      params.Note,
		CreatedBy: &params.CreatedBy,
	}); err != nil {
		return "", err
	}
	s.log.Info("invite code created",
		slog.String("code", inviteCode),
		slog.Int("max_uses", params.MaxUses),
		slog.String("created_by", params.CreatedBy))
	return inviteCode, nil
}

// RevokeInvite отзывает код приглашения.
func (s *AdminService) RevokeInvite(ctx context.Context, rawCode string) error {
	return s.repo.DeactivateInviteCode(ctx, code.Normalize(rawCode))
}

// ListInvites возвращает все коды приглашений.
func (s *AdminService) ListInvites(ctx context.Context) ([]*models.InviteCode, error) {
	return s.repo.ListInviteCodes(ctx)
}

// CreateVoucher выпускает ваучер подписки и возвращает его код.
func (s *AdminService) CreateVoucher(ctx context.Context, params CreateVoucherParams) (string, error) {
	if params.Kind != models.VoucherKindTimeLimited && params.Kind != models.VoucherKindLifetime {
		return "", ErrInvalidVoucherKind
	}
	voucherCode, err := resolveCode(params.Code)
	if err != nil {
		return "", err
	}
	if params.MaxUses <= 0 {
		params.MaxUses = 1
	}
	if params.Kind == models.VoucherKindLifetime {
		params.DurationDays = nil
	}
	if err := s.repo.CreateVoucher(ctx, models.SubscriptionVoucher{
		Code:         voucherCode,
		Kind:         params.Kind,
		Tier:         params.Tier,
		DurationDays: params.DurationDays,
		MaxUses:      params.MaxUses,
		ExpiresAt:    params.ExpiresAt,
		Note:         params.Note,
		CreatedBy:    &params.CreatedBy,
	}); err != nil {
		return "", err
	}
	s.log.Info("voucher created",
		slog.String("code", voucherCode),
		slog.String("kind", params.Kind),
		slog.String("tier", params.Tier),
		slog.String("created_by", params.CreatedBy))
	return voucherCode, nil
}

// ListVouchers возвращает все ваучеры.
func (s *AdminService) ListVouchers(ctx context.Context) ([]*models.SubscriptionVoucher, error) {
	return s.repo.ListVouchers(ctx)
}

// ListPlayers возвращает страницу игроков со сведениями о подписке и привязке.
func (s *AdminService) ListPlayers(ctx context.Context, limit, offset int) ([]*models.PlayerInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPlayers(ctx, limit, offset)
}

// Announce отправляет объявление всем игрокам на сервере.
func (s *AdminService) Announce(ctx context.Context, message string) error {
	return s.control.Announce(ctx, message)
}

// Kick выгоняет игрока с сервера.
func (s *AdminService) Kick(ctx context.Context, username, reason string) error {
	return s.control.Kick(ctx, username, reason)
}

// SetGroup назначает игроку группу на сервере.
func (s *AdminService) SetGroup(ctx context.Context, username, group string) error {
	return s.control.SetGroup(ctx, username, group)
}

// RunCommand исполняет консольную команду на сервере и возвращает вывод.
// Каждый вызов пишется в журнал вместе с именем администратора.
func (s *AdminService) RunCommand(ctx context.Context, adminUID, command string) (string, error) {
	s.log.Info("admin console command",
		slog.String("admin_uid", adminUID),
		slog.String("command", command))
	return s.control.RunCommand(ctx, command)
}

// ListWhitelist возвращает текущий вайтлист игрового сервера.
func (s *AdminService) ListWhitelist(ctx context.Context) ([]string, error) {
	return s.control.ListWhitelist(ctx)
}
