// Package subscription содержит бизнес-логику чтения статуса подписки
// и отмены в конце оплаченного периода.
package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/craftgate/internal/billing"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

// Ошибки, различимые обработчиками.
var (
	// ErrNoSubscription у пользователя нет действующей подписки.
	ErrNoSubscription = errors.New("no active subscription")
	// ErrNotCancellable подписку нельзя отменить: она пожизненная или не оплачивается через провайдера.
	ErrNotCancellable = errors.New("subscription is not cancellable")
)

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
type SubscriptionRepository interface {
	// GetCurrentSubscription возвращает текущую подписку пользователя.
	GetCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
	// MarkExpired помечает просроченную запись как expired (идемпотентно).
	MarkExpired(ctx context.Context, subID int) error
	// SetCancelAtPeriodEnd выставляет флаг отмены в конце периода.
	SetCancelAtPeriodEnd(ctx context.Context, subID int, cancel bool) error
	// GetMinecraftAccount возвращает привязанный Minecraft-аккаунт пользователя.
	GetMinecraftAccount(ctx context.Context, userUID string) (*models.MinecraftAccount, error)
}

// BillingClient описывает нужные операции клиента платёжного провайдера.
type BillingClient interface {
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*billing.Subscription, error)
}

// WhitelistSyncer ставит задачи синхронизации вайтлиста.
type WhitelistSyncer interface {
	Remove(username string)
}

// SubscriptionService реализует чтение статуса с ленивой фиксацией истечения
// и отмену подписки.
type SubscriptionService struct {
	repo      SubscriptionRepository
	provider  BillingClient
	whitelist WhitelistSyncer
	log       *slog.Logger
}

// New создает новый экземпляр SubscriptionService.
func New(repo SubscriptionRepository, provider BillingClient, whitelist WhitelistSyncer, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:      repo,
		provider:  provider,
		whitelist: whitelist,
		log:       log,
	}
}

// Status возвращает проекцию текущей подписки пользователя.
//
// Просроченная непожизненная запись читается как "none"; попутно запись
// помечается expired в БД и игрок снимается с вайтлиста. Побочный эффект
// идемпотентен, повторное чтение ничего не меняет.
func (s *SubscriptionService) Status(ctx context.Context, userUID string) (*models.StatusInfo, error) {
	sub, err := s.repo.GetCurrentSubscription(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &models.StatusInfo{Status: "none"}, nil
		}
		return nil, err
	}

	effective := models.EffectiveStatus(sub.Status, sub.CurrentPeriodEnd, sub.IsLifetime, time.Now())
	if effective == models.StatusExpired && sub.Status != models.StatusExpired {
		if err := s.repo.MarkExpired(ctx, sub.ID); err != nil {
			s.log.Error("failed to mark subscription expired",
				slog.Int("subscription_id", sub.ID), sl.Err(err))
		}
		if acc, err := s.repo.GetMinecraftAccount(ctx, userUID); err == nil {
			s.whitelist.Remove(acc.MCUsername)
		}
	}

	status := string(effective)
	if effective == models.StatusExpired {
		status = "none"
	}
	return &models.StatusInfo{
		Status:            status,
		Tier:              sub.Tier,
		IsLifetime:        sub.IsLifetime,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		MonthlyAmount:     sub.MonthlyAmount,
	}, nil
}

// Cancel помечает подписку к отмене в конце оплаченного периода у провайдера
// и в БД. Доступ сохраняется до конца периода, с вайтлиста игрок не снимается.
func (s *SubscriptionService) Cancel(ctx context.Context, userUID string) error {
	sub, err := s.repo.GetCurrentSubscription(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoSubscription
		}
		return err
	}
	if sub.Status != models.StatusActive {
		return ErrNoSubscription
	}
	if sub.IsLifetime || sub.BillingSubscriptionID == nil {
		return ErrNotCancellable
	}
	if sub.CancelAtPeriodEnd {
		return nil
	}

	if _, err := s.provider.SetCancelAtPeriodEnd(ctx, *sub.BillingSubscriptionID, true); err != nil {
		return err
	}
	if err := s.repo.SetCancelAtPeriodEnd(ctx, sub.ID, true); err != nil {
		return err
	}
	s.log.Info("subscription scheduled for cancellation",
		slog.String("user_uid", userUID),
		slog.Int("subscription_id", sub.ID))
	return nil
}
