// Package checkout инициирует оплату подписки у платёжного провайдера:
// разрешение тарифа по таблице цен, создание покупателя, создание подписки
// в состоянии incomplete, смена тарифа на месте и реактивация.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/craftgate/internal/billing"
	"github.com/magabrotheeeer/craftgate/internal/config"
	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

// Ошибки, различимые обработчиками.
var (
	// ErrUnknownPrice комбинация тарифа и суммы отсутствует в таблице цен.
	ErrUnknownPrice = errors.New("unknown tier or amount")
	// ErrAlreadySubscribed подписка уже действует на этих условиях.
	ErrAlreadySubscribed = errors.New("subscription already active")
)

// Действия, которыми может завершиться инициация оплаты.
const (
	ActionCreated     = "created"
	ActionUpgraded    = "upgraded"
	ActionReactivated = "reactivated"
)

// Result итог инициации оплаты. ClientSecret заполнен только для ActionCreated.
type Result struct {
	Action       string `json:"action"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Repository определяет методы хранилища, нужные для инициации оплаты.
type Repository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
	GetLatestSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub models.Subscription) (int, error)
	SetBillingCustomerID(ctx context.Context, subID int, customerID string) error
	UpdateTierAmount(ctx context.Context, subID int, tier string, amount int) error
	SetCancelAtPeriodEnd(ctx context.Context, subID int, cancel bool) error
}

// BillingClient описывает нужные операции клиента платёжного провайдера.
type BillingClient interface {
	CreateCustomer(ctx context.Context, email, userUID string) (*billing.Customer, error)
	CreateSubscription(ctx context.Context, req billing.CreateSubscriptionRequest) (*billing.Subscription, error)
	ChangeSubscriptionPrice(ctx context.Context, id string, change billing.ChangePriceRequest) (*billing.Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*billing.Subscription, error)
}

// CheckoutService реализует инициацию оплаты подписки.
type CheckoutService struct {
	repo     Repository
	provider BillingClient
	prices   []config.TierPrice
	log      *slog.Logger
}

// New создает новый экземпляр CheckoutService.
func New(repo Repository, provider BillingClient, prices []config.TierPrice, log *slog.Logger) *CheckoutService {
	return &CheckoutService{
		repo:     repo,
		provider: provider,
		prices:   prices,
		log:      log,
	}
}

// resolvedPrice разрешённая строка таблицы цен: либо PriceID, либо PriceData.
type resolvedPrice struct {
	PriceID   string
	PriceData *billing.PriceData
	Amount    int
}

// resolvePrice находит цену по тарифу и сумме. Сумма 0 означает дефолтную
// цену тарифа. Тариф с произвольной суммой принимает любую сумму не ниже
// настроенного минимума.
func (s *CheckoutService) resolvePrice(tier string, amount int) (*resolvedPrice, error) {
	for _, p := range s.prices {
		if p.Tier != tier {
			continue
		}
		if p.Variable {
			if amount >= p.MinAmount && amount > 0 {
				return &resolvedPrice{
					PriceData: &billing.PriceData{
						ProductID:  p.ProductID,
						UnitAmount: amount,
						Currency:   "rub",
					},
					Amount: amount,
				}, nil
			}
			continue
		}
		if amount == 0 || amount == p.Amount {
			return &resolvedPrice{PriceID: p.PriceID, Amount: p.Amount}, nil
		}
	}
	return nil, ErrUnknownPrice
}

// Checkout инициирует оплату тарифа для пользователя.
//
// Действующая неотменяемая подписка на других условиях меняет тариф на месте
// с пропорцией, без промежуточной incomplete-записи. Подписка с флагом отмены
// реактивируется снятием флага. Подписка на тех же условиях отклоняется.
// В остальных случаях создаётся подписка провайдера в состоянии incomplete
// и локальная incomplete-запись; клиенту возвращается client_secret платежа.
func (s *CheckoutService) Checkout(ctx context.Context, userUID, tier string, amount int) (*Result, error) {
	price, err := s.resolvePrice(tier, amount)
	if err != nil {
		// Неизвестная комбинация не создаёт ничего ни у провайдера, ни в БД.
		return nil, err
	}

	current, err := s.repo.GetCurrentSubscription(ctx, userUID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	// Решение принимается по действующему статусу: просроченная запись,
	// которую никто не читал через статус, не должна блокировать оплату.
	if current != nil &&
		models.EffectiveStatus(current.Status, current.CurrentPeriodEnd, current.IsLifetime, time.Now()) == models.StatusActive {
		if current.BillingSubscriptionID == nil {
			// Пожизненная или ваучерная подписка: оплачивать нечего.
			return nil, ErrAlreadySubscribed
		}
		if current.CancelAtPeriodEnd {
			return s.reactivate(ctx, current)
		}
		if current.Tier != nil && *current.Tier == tier && current.MonthlyAmount == price.Amount {
			return nil, ErrAlreadySubscribed
		}
		return s.changePrice(ctx, current, tier, price)
	}

	return s.create(ctx, userUID, tier, price)
}

func (s *CheckoutService) reactivate(ctx context.Context, sub *models.Subscription) (*Result, error) {
	if _, err := s.provider.SetCancelAtPeriodEnd(ctx, *sub.BillingSubscriptionID, false); err != nil {
		return nil, err
	}
	if err := s.repo.SetCancelAtPeriodEnd(ctx, sub.ID, false); err != nil {
		return nil, err
	}
	s.log.Info("subscription reactivated",
		slog.String("user_uid", sub.UserUID),
		slog.Int("subscription_id", sub.ID))
	return &Result{Action: ActionReactivated}, nil
}

func (s *CheckoutService) changePrice(ctx context.Context, sub *models.Subscription, tier string, price *resolvedPrice) (*Result, error) {
	_, err := s.provider.ChangeSubscriptionPrice(ctx, *sub.BillingSubscriptionID, billing.ChangePriceRequest{
		PriceID:   price.PriceID,
		PriceData: price.PriceData,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateTierAmount(ctx, sub.ID, tier, price.Amount); err != nil {
		return nil, err
	}
	s.log.Info("subscription tier changed in place",
		slog.String("user_uid", sub.UserUID),
		slog.String("tier", tier),
		slog.Int("amount", price.Amount))
	return &Result{Action: ActionUpgraded}, nil
}

func (s *CheckoutService) create(ctx context.Context, userUID, tier string, price *resolvedPrice) (*Result, error) {
	customerID, err := s.ensureCustomer(ctx, userUID)
	if err != nil {
		return nil, err
	}

	provSub, err := s.provider.CreateSubscription(ctx, billing.CreateSubscriptionRequest{
		CustomerID: customerID,
		PriceID:    price.PriceID,
		PriceData:  price.PriceData,
		Metadata: map[string]string{
			"user_uid": userUID,
			"tier":     tier,
		},
	})
	if err != nil {
		return nil, err
	}

	_, err = s.repo.CreateSubscription(ctx, models.Subscription{
		UserUID:               userUID,
		BillingCustomerID:     &customerID,
		BillingSubscriptionID: &provSub.ID,
		Status:                models.StatusIncomplete,
		Tier:                  &tier,
		MonthlyAmount:         price.Amount,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Action: ActionCreated}
	if provSub.LatestInvoice != nil && provSub.LatestInvoice.PaymentIntent != nil {
		result.ClientSecret = provSub.LatestInvoice.PaymentIntent.ClientSecret
	}
	s.log.Info("checkout created",
		slog.String("user_uid", userUID),
		slog.String("tier", tier),
		slog.String("billing_subscription_id", provSub.ID))
	return result, nil
}

// ensureCustomer возвращает billing-идентификатор покупателя, создавая его
// у провайдера при первом обращении. Созданный идентификатор сохраняется
// на самую свежую запись подписки, чтобы не плодить покупателей.
func (s *CheckoutService) ensureCustomer(ctx context.Context, userUID string) (string, error) {
	latest, err := s.repo.GetLatestSubscriptionByUser(ctx, userUID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}
	if latest != nil && latest.BillingCustomerID != nil {
		return *latest.BillingCustomerID, nil
	}

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return "", err
	}
	customer, err := s.provider.CreateCustomer(ctx, user.Email, userUID)
	if err != nil {
		return "", err
	}
	if latest != nil {
		if err := s.repo.SetBillingCustomerID(ctx, latest.ID, customer.ID); err != nil {
			return "", err
		}
	}
	return customer.ID, nil
}
