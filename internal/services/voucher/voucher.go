// Package voucher реализует погашение ваучеров подписки.
package voucher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/magabrotheeeer/craftgate/internal/lib/code"
	"github.com/magabrotheeeer/craftgate/internal/models"
)

// ErrAlreadySubscribed у пользователя уже есть подписка, несовместимая с ваучером.
var ErrAlreadySubscribed = errors.New("subscription already active")

// Repository определяет методы хранилища для погашения ваучеров.
type Repository interface {
	// HasLifetimeSubscription сообщает, есть ли у пользователя пожизненная подписка.
	HasLifetimeSubscription(ctx context.Context, userUID string) (bool, error)
	// HasBilledActiveSubscription сообщает, есть ли активная подписка через провайдера.
	HasBilledActiveSubscription(ctx context.Context, userUID string) (bool, error)
	// RedeemVoucher атомарно гасит ваучер и создаёт активную запись подписки.
	RedeemVoucher(ctx context.Context, voucherCode, userUID string) (*models.Subscription, error)
	// GetMinecraftAccount возвращает привязанный Minecraft-аккаунт пользователя.
	GetMinecraftAccount(ctx context.Context, userUID string) (*models.MinecraftAccount, error)
}

// WhitelistSyncer ставит задачи синхронизации вайтлиста.
type WhitelistSyncer interface {
	Add(username string)
}

// VoucherService реализует погашение ваучеров.
type VoucherService struct {
	repo      Repository
	whitelist WhitelistSyncer
	log       *slog.Logger
}

// New создает новый экземпляр VoucherService.
func New(repo Repository, whitelist WhitelistSyncer, log *slog.Logger) *VoucherService {
	return &VoucherService{
		repo:      repo,
		whitelist: whitelist,
		log:       log,
	}
}

// Redeem гасит ваучер для пользователя и возвращает созданную запись подписки.
//
// Держатель пожизненной подписки и пользователь с активной подпиской через
// провайдера получают отказ: ваучер не должен сгорать впустую и не должен
// перекрывать оплачиваемую подписку. Привязанный игрок сразу ставится
// в очередь на вайтлист.
func (s *VoucherService) Redeem(ctx context.Context, userUID, rawCode string) (*models.Subscription, error) {
	voucherCode := code.Normalize(rawCode)

	hasLifetime, err := s.repo.HasLifetimeSubscription(ctx, userUID)
	if err != nil {
		return nil, err
	}
	if hasLifetime {
		return nil, ErrAlreadySubscribed
	}
	hasBilled, err := s.repo.HasBilledActiveSubscription(ctx, userUID)
	if err != nil {
		return nil, err
	}
	if hasBilled {
		return nil, ErrAlreadySubscribed
	}

	sub, err := s.repo.RedeemVoucher(ctx, voucherCode, userUID)
	if err != nil {
		return nil, err
	}
	s.log.Info("voucher redeemed",
		slog.String("user_uid", userUID),
		slog.String("code", voucherCode),
		slog.Bool("is_lifetime", sub.IsLifetime))

	if acc, err := s.repo.GetMinecraftAccount(ctx, userUID); err == nil {
		s.whitelist.Add(acc.MCUsername)
	}
	return sub, nil
}
