// Package reconciler сводит события платёжного провайдера с локальными
// записями подписок. События приходят минимум один раз, в произвольном
// порядке и с дубликатами; все решения о статусе принимает единственная
// функция перехода models.ApplyBillingEvent, а запись в БД идёт через
// сериализуемую транзакцию репозитория.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magabrotheeeer/craftgate/internal/billing"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "craftgate",
	Name:      "billing_events_total",
	Help:      "Billing webhook events by type and outcome.",
}, []string{"type", "outcome"})

// fallbackPeriod страховочный срок доступа, когда провайдер не сообщил
// окончание оплаченного периода.
const fallbackPeriod = 30 * 24 * time.Hour

// Repository определяет методы хранилища, нужные для сведения событий.
type Repository interface {
	// ApplyBillingUpdate применяет событие к записи в сериализуемой транзакции.
	ApplyBillingUpdate(ctx context.Context, upd models.BillingUpdate, createUserUID string) (*models.Subscription, bool, error)
	// GetSubscriptionByBillingSubID возвращает запись по billing-идентификатору.
	GetSubscriptionByBillingSubID(ctx context.Context, billingSubID string) (*models.Subscription, error)
	// GetMinecraftAccount возвращает привязанный Minecraft-аккаунт пользователя.
	GetMinecraftAccount(ctx context.Context, userUID string) (*models.MinecraftAccount, error)
}

// BillingClient описывает нужные операции клиента платёжного провайдера.
type BillingClient interface {
	GetSubscription(ctx context.Context, id string) (*billing.Subscription, error)
}

// WhitelistSyncer ставит задачи синхронизации вайтлиста.
type WhitelistSyncer interface {
	Add(username string)
	Remove(username string)
}

// ReconcilerService применяет события вебхука и подтверждающего опроса.
type ReconcilerService struct {
	repo      Repository
	provider  BillingClient
	whitelist WhitelistSyncer
	log       *slog.Logger
}

// New создает новый экземпляр ReconcilerService.
func New(repo Repository, provider BillingClient, whitelist WhitelistSyncer, log *slog.Logger) *ReconcilerService {
	return &ReconcilerService{
		repo:      repo,
		provider:  provider,
		whitelist: whitelist,
		log:       log,
	}
}

// statusFromProvider переводит строку статуса провайдера в замкнутое множество.
func statusFromProvider(s string) models.Status {
	switch s {
	case "active", "trialing":
		return models.StatusActive
	case "past_due":
		return models.StatusPastDue
	case "canceled", "unpaid":
		return models.StatusCanceled
	default:
		return models.StatusIncomplete
	}
}

// updateFromProvider строит обновление локальной записи из подписки провайдера.
func updateFromProvider(sub *billing.Subscription, forceActive bool) models.BillingUpdate {
	upd := models.BillingUpdate{
		BillingSubscriptionID: sub.ID,
		BillingCustomerID:     sub.CustomerID,
		Status:                statusFromProvider(sub.Status),
		MonthlyAmount:         sub.Amount(),
		CurrentPeriodEnd:      sub.PeriodEnd(),
		CancelAtPeriodEnd:     sub.CancelAtPeriodEnd,
		ForceActive:           forceActive,
	}
	if tier, ok := sub.Metadata["tier"]; ok && tier != "" {
		upd.Tier = &tier
	}
	if forceActive && upd.CurrentPeriodEnd == nil {
		// Провайдер иногда не сообщает окончание периода в момент оплаты.
		t := time.Now().Add(fallbackPeriod)
		upd.CurrentPeriodEnd = &t
	}
	return upd
}

// HandleEvent обрабатывает одно событие вебхука. Ошибка заставляет провайдера
// доставить событие повторно.
func (s *ReconcilerService) HandleEvent(ctx context.Context, event billing.Event) error {
	const op = "reconciler.HandleEvent"

	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(ctx, event)
	case "invoice.paid":
		err = s.handleInvoicePaid(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	case "payment_intent.succeeded":
		err = s.handlePaymentIntentSucceeded(ctx, event)
	default:
		s.log.Info("ignoring unknown billing event", slog.String("type", event.Type))
		eventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		return nil
	}

	if err != nil {
		eventsTotal.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	eventsTotal.WithLabelValues(event.Type, "ok").Inc()
	return nil
}

func (s *ReconcilerService) handleCheckoutCompleted(ctx context.Context, event billing.Event) error {
	var session billing.CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return err
	}
	if session.SubscriptionID == "" {
		s.log.Info("checkout session without subscription", slog.String("session_id", session.ID))
		return nil
	}
	// Содержимому сессии не доверяем, статус берём у провайдера.
	sub, err := s.provider.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return err
	}
	return s.apply(ctx, updateFromProvider(sub, false), sub.Metadata["user_uid"])
}

func (s *ReconcilerService) handleInvoicePaid(ctx context.Context, event billing.Event) error {
	var invoice billing.Invoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return err
	}
	if invoice.SubscriptionID == "" {
		return nil
	}

	// Оплата первого инвойса достовернее поля статуса подписки,
	// которое провайдер обновляет с задержкой.
	forceActive := invoice.BillingReason == "subscription_create"

	upd := models.BillingUpdate{
		BillingSubscriptionID: invoice.SubscriptionID,
		BillingCustomerID:     invoice.CustomerID,
		Status:                models.StatusActive,
		ForceActive:           forceActive,
	}
	var createUserUID string
	if sub, err := s.provider.GetSubscription(ctx, invoice.SubscriptionID); err == nil {
		upd = updateFromProvider(sub, forceActive)
		createUserUID = sub.Metadata["user_uid"]
	} else {
		s.log.Warn("failed to fetch subscription for paid invoice",
			slog.String("billing_subscription_id", invoice.SubscriptionID), sl.Err(err))
		t := time.Now().Add(fallbackPeriod)
		upd.CurrentPeriodEnd = &t
	}
	return s.apply(ctx, upd, createUserUID)
}

func (s *ReconcilerService) handleSubscriptionUpdated(ctx context.Context, event billing.Event) error {
	var sub billing.Subscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return err
	}
	return s.apply(ctx, updateFromProvider(&sub, false), sub.Metadata["user_uid"])
}

func (s *ReconcilerService) handleSubscriptionDeleted(ctx context.Context, event billing.Event) error {
	var sub billing.Subscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return err
	}
	upd := updateFromProvider(&sub, false)
	upd.Status = models.StatusCanceled
	return s.apply(ctx, upd, "")
}

func (s *ReconcilerService) handlePaymentIntentSucceeded(ctx context.Context, event billing.Event) error {
	var intent billing.PaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return err
	}
	subID := intent.Metadata["subscription_id"]
	if subID == "" {
		return nil
	}
	sub, err := s.provider.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	return s.apply(ctx, updateFromProvider(sub, true), sub.Metadata["user_uid"])
}

// apply проводит обновление через транзакцию репозитория и синхронизирует
// вайтлист по итоговому статусу записи.
func (s *ReconcilerService) apply(ctx context.Context, upd models.BillingUpdate, createUserUID string) error {
	sub, applied, err := s.repo.ApplyBillingUpdate(ctx, upd, createUserUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Записи нет и создать её не из чего: событие принято, чтобы
			// провайдер не долбил повторными доставками.
			s.log.Warn("billing event matched no subscription",
				slog.String("billing_subscription_id", upd.BillingSubscriptionID),
				slog.String("billing_customer_id", upd.BillingCustomerID))
			return nil
		}
		return err
	}
	if !applied {
		s.log.Info("billing event rejected by transition rules",
			slog.String("billing_subscription_id", upd.BillingSubscriptionID),
			slog.String("current_status", string(sub.Status)))
		return nil
	}

	s.log.Info("subscription reconciled",
		slog.Int("subscription_id", sub.ID),
		slog.String("status", string(sub.Status)))
	s.syncWhitelist(ctx, sub)
	return nil
}

// syncWhitelist ставит задачу вайтлиста по статусу записи. Флаг отмены в
// конце периода доступ не снимает.
func (s *ReconcilerService) syncWhitelist(ctx context.Context, sub *models.Subscription) {
	acc, err := s.repo.GetMinecraftAccount(ctx, sub.UserUID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Error("failed to load minecraft account", sl.Err(err))
		}
		return
	}
	switch {
	case sub.Status == models.StatusActive:
		s.whitelist.Add(acc.MCUsername)
	case models.RemovesAccess(sub.Status):
		s.whitelist.Remove(acc.MCUsername)
	}
}

// ConfirmSubscription подтверждает оплату после возврата пользователя
// с платёжного виджета. Подписка должна принадлежать вызывающему: чужой
// billing-идентификатор читается как несуществующий. Провайдер опрашивается
// напрямую; если он недоступен, локальная incomplete-запись оптимистично
// считается оплаченной — гонка с вебхуком безопасна, обе стороны ходят
// через одну функцию перехода.
func (s *ReconcilerService) ConfirmSubscription(ctx context.Context, userUID, billingSubID string) (models.Status, error) {
	const op = "reconciler.ConfirmSubscription"

	local, err := s.repo.GetSubscriptionByBillingSubID(ctx, billingSubID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if local != nil && local.UserUID != userUID {
		s.log.Warn("confirm rejected, subscription belongs to another user",
			slog.String("billing_subscription_id", billingSubID),
			slog.String("user_uid", userUID))
		return "", fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	provSub, err := s.provider.GetSubscription(ctx, billingSubID)
	if err != nil {
		if local == nil {
			return "", fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		s.log.Warn("billing provider unreachable, trusting local state",
			slog.String("billing_subscription_id", billingSubID), sl.Err(err))
		return s.confirmOptimistic(ctx, billingSubID, local)
	}

	if local == nil && provSub.Metadata["user_uid"] != userUID {
		return "", fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	forceActive := false
	switch {
	case provSub.Status == "active" || provSub.Status == "trialing":
		forceActive = true
	case provSub.LatestInvoice != nil && provSub.LatestInvoice.Paid:
		forceActive = true
	}

	sub, _, err := s.repo.ApplyBillingUpdate(ctx, updateFromProvider(provSub, forceActive), provSub.Metadata["user_uid"])
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.syncWhitelist(ctx, sub)
	return sub.Status, nil
}

func (s *ReconcilerService) confirmOptimistic(ctx context.Context, billingSubID string, local *models.Subscription) (models.Status, error) {
	const op = "reconciler.confirmOptimistic"

	if local.Status != models.StatusIncomplete {
		return local.Status, nil
	}

	t := time.Now().Add(fallbackPeriod)
	upd := models.BillingUpdate{
		BillingSubscriptionID: billingSubID,
		Status:                models.StatusActive,
		ForceActive:           true,
		CurrentPeriodEnd:      &t,
	}
	sub, _, err := s.repo.ApplyBillingUpdate(ctx, upd, "")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.syncWhitelist(ctx, sub)
	return sub.Status, nil
}
