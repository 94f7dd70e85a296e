// Package minecraft реализует привязку Minecraft-аккаунта к учётной записи:
// выдачу короткоживущего кода, завершение привязки, отвязку и смену ника.
package minecraft

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/craftgate/internal/lib/code"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

// Ошибки, различимые обработчиками.
var (
	// ErrInvalidLinkCode код привязки не найден или истёк.
	ErrInvalidLinkCode = errors.New("invalid or expired link code")
	// ErrNotLinked у пользователя нет привязанного аккаунта.
	ErrNotLinked = errors.New("minecraft account is not linked")
)

// Repository определяет методы хранилища для привязок аккаунтов.
type Repository interface {
	UpsertMinecraftAccount(ctx context.Context, acc models.MinecraftAccount) error
	GetMinecraftAccount(ctx context.Context, userUID string) (*models.MinecraftAccount, error)
	DeleteMinecraftAccount(ctx context.Context, userUID string) error
	UpdateNickname(ctx context.Context, userUID, nickname string) error
	GetCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
}

// LinkCodeStore хранит коды привязки с TTL.
type LinkCodeStore interface {
	PutLinkCode(ctx context.Context, linkCode, userUID string) error
	TakeLinkCode(ctx context.Context, linkCode string) (string, bool, error)
}

// ControlClient описывает нужные операции шлюза игрового сервера.
type ControlClient interface {
	SetNickname(ctx context.Context, username, nickname string) error
}

// WhitelistSyncer ставит задачи синхронизации вайтлиста.
type WhitelistSyncer interface {
	Add(username string)
	Remove(username string)
}

// MinecraftService реализует жизненный цикл привязки аккаунта.
type MinecraftService struct {
	repo      Repository
	codes     LinkCodeStore
	control   ControlClient
	whitelist WhitelistSyncer
	log       *slog.Logger
}

// New создает новый экземпляр MinecraftService.
func New(repo Repository, codes LinkCodeStore, control ControlClient, whitelist WhitelistSyncer, log *slog.Logger) *MinecraftService {
	return &MinecraftService{
		repo:      repo,
		codes:     codes,
		control:   control,
		whitelist: whitelist,
		log:       log,
	}
}

// IssueLinkCode выдаёт пользователю одноразовый код привязки.
// Код вводится в игре и живёт десять минут.
func (s *MinecraftService) IssueLinkCode(ctx context.Context, userUID string) (string, error) {
	linkCode, err := code.Generate()
	if err != nil {
		return "", err
	}
	if err := s.codes.PutLinkCode(ctx, linkCode, userUID); err != nil {
		return "", err
	}
	return linkCode, nil
}

// CompleteLink завершает привязку по коду, введённому в игре.
// Код одноразовый: повторное использование отклоняется. Если у пользователя
// действует подписка, игрок сразу ставится в очередь на вайтлист.
func (s *MinecraftService) CompleteLink(ctx context.Context, linkCode, mojangUUID, mcUsername string) error {
	userUID, ok, err := s.codes.TakeLinkCode(ctx, code.Normalize(linkCode))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidLinkCode
	}

	if err := s.repo.UpsertMinecraftAccount(ctx, models.MinecraftAccount{
		UserUID:    userUID,
		MojangUUID: mojangUUID,
		MCUsername: mcUsername,
	}); err != nil {
		return err
	}
	s.log.Info("minecraft account linked",
		slog.String("user_uid", userUID),
		slog.String("mc_username", mcUsername))

	if s.hasAccess(ctx, userUID) {
		s.whitelist.Add(mcUsername)
	}
	return nil
}

// Unlink снимает привязку и убирает игрока с вайтлиста.
func (s *MinecraftService) Unlink(ctx context.Context, userUID string) error {
	acc, err := s.repo.GetMinecraftAccount(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotLinked
		}
		return err
	}
	if err := s.repo.DeleteMinecraftAccount(ctx, userUID); err != nil {
		return err
	}
	s.whitelist.Remove(acc.MCUsername)
	s.log.Info("minecraft account unlinked",
		slog.String("user_uid", userUID),
		slog.String("mc_username", acc.MCUsername))
	return nil
}

// SetNickname сохраняет отображаемый ник и передаёт его на игровой сервер.
// Передача на сервер не критична: при ошибке шлюза ник остаётся в БД и
// применится при следующей синхронизации.
func (s *MinecraftService) SetNickname(ctx context.Context, userUID, nickname string) error {
	acc, err := s.repo.GetMinecraftAccount(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotLinked
		}
		return err
	}
	if err := s.repo.UpdateNickname(ctx, userUID, nickname); err != nil {
		return err
	}
	if err := s.control.SetNickname(ctx, acc.MCUsername, nickname); err != nil {
		s.log.Warn("failed to push nickname to game server",
			slog.String("mc_username", acc.MCUsername), sl.Err(err))
	}
	return nil
}

// hasAccess сообщает, действует ли у пользователя подписка на текущий момент.
func (s *MinecraftService) hasAccess(ctx context.Context, userUID string) bool {
	sub, err := s.repo.GetCurrentSubscription(ctx, userUID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Error("failed to check subscription for whitelist", sl.Err(err))
		}
		return false
	}
	return models.EffectiveStatus(sub.Status, sub.CurrentPeriodEnd, sub.IsLifetime, time.Now()) == models.StatusActive
}
