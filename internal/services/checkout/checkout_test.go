package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/craftgate/internal/billing"
	"github.com/magabrotheeeer/craftgate/internal/config"
	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/services/checkout"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) GetCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetLatestSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	args := m.Called(ctx, sub)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) SetBillingCustomerID(ctx context.Context, subID int, customerID string) error {
	args := m.Called(ctx, subID, customerID)
	return args.Error(0)
}

func (m *RepoMock) UpdateTierAmount(ctx context.Context, subID int, tier string, amount int) error {
	args := m.Called(ctx, subID, tier, amount)
	return args.Error(0)
}

func (m *RepoMock) SetCancelAtPeriodEnd(ctx context.Context, subID int, cancel bool) error {
	args := m.Called(ctx, subID, cancel)
	return args.Error(0)
}

type ProviderMock struct {
	mock.Mock
}

func (m *ProviderMock) CreateCustomer(ctx context.Context, email, userUID string) (*billing.Customer, error) {
	args := m.Called(ctx, email, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Customer), args.Error(1)
}

func (m *ProviderMock) CreateSubscription(ctx context.Context, req billing.CreateSubscriptionRequest) (*billing.Subscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *ProviderMock) ChangeSubscriptionPrice(ctx context.Context, id string, change billing.ChangePriceRequest) (*billing.Subscription, error) {
	args := m.Called(ctx, id, change)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *ProviderMock) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*billing.Subscription, error) {
	args := m.Called(ctx, id, cancel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

var testPrices = []config.TierPrice{
	{Tier: "member", Amount: 500, PriceID: "price_member"},
	{Tier: "ultra", Amount: 1500, PriceID: "price_ultra_default"},
	{Tier: "ultra", Variable: true, MinAmount: 1500, ProductID: "prod_ultra"},
}

func newService(repo *RepoMock, provider *ProviderMock) *checkout.CheckoutService {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return checkout.New(repo, provider, testPrices, log)
}

func notFound() error {
	return fmt.Errorf("storage: %w", repository.ErrNotFound)
}

func TestCheckoutService_Checkout(t *testing.T) {
	tierMember := "member"
	tierUltra := "ultra"
	custID := "cus_1"
	billingSubID := "sub_1"

	tests := []struct {
		name       string
		tier       string
		amount     int
		setupMocks func(r *RepoMock, p *ProviderMock)
		wantAction string
		wantSecret string
		wantErr    error
	}{
		{
			name:       "unknown tier creates nothing anywhere",
			tier:       "vip",
			amount:     0,
			setupMocks: func(_ *RepoMock, _ *ProviderMock) {},
			wantErr:    checkout.ErrUnknownPrice,
		},
		{
			name:       "unknown amount for fixed tier creates nothing",
			tier:       "member",
			amount:     700,
			setupMocks: func(_ *RepoMock, _ *ProviderMock) {},
			wantErr:    checkout.ErrUnknownPrice,
		},
		{
			name:       "variable tier below minimum creates nothing",
			tier:       "ultra",
			amount:     100,
			setupMocks: func(_ *RepoMock, _ *ProviderMock) {},
			wantErr:    checkout.ErrUnknownPrice,
		},
		{
			name:   "first checkout creates customer and incomplete subscription",
			tier:   "member",
			amount: 0,
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(nil, notFound()).Once()
				r.On("GetLatestSubscriptionByUser", mock.Anything, "uid-1").Return(nil, notFound()).Once()
				r.On("GetUser", mock.Anything, "uid-1").Return(&models.User{
					UUID: "uid-1", Email: "test@example.com",
				}, nil).Once()
				p.On("CreateCustomer", mock.Anything, "test@example.com", "uid-1").
					Return(&billing.Customer{ID: "cus_1"}, nil).Once()
				p.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(req billing.CreateSubscriptionRequest) bool {
					return req.CustomerID == "cus_1" && req.PriceID == "price_member" &&
						req.Metadata["user_uid"] == "uid-1"
				})).Return(&billing.Subscription{
					ID: "sub_1", CustomerID: "cus_1", Status: "incomplete",
					LatestInvoice: &billing.Invoice{
						PaymentIntent: &billing.PaymentIntent{ClientSecret: "pi_secret"},
					},
				}, nil).Once()
				r.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
					return sub.UserUID == "uid-1" && sub.Status == models.StatusIncomplete &&
						sub.Tier != nil && *sub.Tier == "member" && sub.MonthlyAmount == 500
				})).Return(1, nil).Once()
			},
			wantAction: checkout.ActionCreated,
			wantSecret: "pi_secret",
		},
		{
			name:   "variable tier above minimum uses ad hoc price data",
			tier:   "ultra",
			amount: 3000,
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(nil, notFound()).Once()
				r.On("GetLatestSubscriptionByUser", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", BillingCustomerID: &custID,
				}, nil).Once()
				p.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(req billing.CreateSubscriptionRequest) bool {
					return req.PriceData != nil && req.PriceData.UnitAmount == 3000 &&
						req.PriceData.ProductID == "prod_ultra"
				})).Return(&billing.Subscription{ID: "sub_2", Status: "incomplete"}, nil).Once()
				r.On("CreateSubscription", mock.Anything, mock.Anything).Return(2, nil).Once()
			},
			wantAction: checkout.ActionCreated,
		},
		{
			name:   "active at same tier and amount is rejected",
			tier:   "member",
			amount: 500,
			setupMocks: func(r *RepoMock, _ *ProviderMock) {
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive,
					Tier: &tierMember, MonthlyAmount: 500,
					BillingCustomerID: &custID, BillingSubscriptionID: &billingSubID,
				}, nil).Once()
			},
			wantErr: checkout.ErrAlreadySubscribed,
		},
		{
			name:   "active at different tier swaps price in place",
			tier:   "ultra",
			amount: 0,
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive,
					Tier: &tierMember, MonthlyAmount: 500,
					BillingCustomerID: &custID, BillingSubscriptionID: &billingSubID,
				}, nil).Once()
				p.On("ChangeSubscriptionPrice", mock.Anything, "sub_1", mock.MatchedBy(func(change billing.ChangePriceRequest) bool {
					return change.PriceID == "price_ultra_default"
				})).Return(&billing.Subscription{ID: "sub_1", Status: "active"}, nil).Once()
				r.On("UpdateTierAmount", mock.Anything, 1, "ultra", 1500).Return(nil).Once()
			},
			wantAction: checkout.ActionUpgraded,
		},
		{
			name:   "cancelling subscription is reactivated",
			tier:   "member",
			amount: 0,
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive,
					Tier: &tierMember, MonthlyAmount: 500, CancelAtPeriodEnd: true,
					BillingCustomerID: &custID, BillingSubscriptionID: &billingSubID,
				}, nil).Once()
				p.On("SetCancelAtPeriodEnd", mock.Anything, "sub_1", false).
					Return(&billing.Subscription{ID: "sub_1", Status: "active"}, nil).Once()
				r.On("SetCancelAtPeriodEnd", mock.Anything, 1, false).Return(nil).Once()
			},
			wantAction: checkout.ActionReactivated,
		},
		{
			name:   "active voucher subscription rejects checkout",
			tier:   "ultra",
			amount: 0,
			setupMocks: func(r *RepoMock, _ *ProviderMock) {
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive,
					Tier: &tierUltra, IsLifetime: true,
				}, nil).Once()
			},
			wantErr: checkout.ErrAlreadySubscribed,
		},
		{
			name:   "lapsed voucher subscription does not block checkout",
			tier:   "member",
			amount: 0,
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				past := time.Now().AddDate(0, 0, -1)
				// Запись ещё active в БД: ленивая фиксация её не трогала,
				// а вебхук ваучерную подписку никогда не обновит
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive,
					Tier: &tierUltra, CurrentPeriodEnd: &past,
				}, nil).Once()
				r.On("GetLatestSubscriptionByUser", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", BillingCustomerID: &custID,
				}, nil).Once()
				p.On("CreateSubscription", mock.Anything, mock.Anything).
					Return(&billing.Subscription{ID: "sub_3", Status: "incomplete"}, nil).Once()
				r.On("CreateSubscription", mock.Anything, mock.Anything).Return(3, nil).Once()
			},
			wantAction: checkout.ActionCreated,
		},
		{
			name:   "provider failure creates no local row",
			tier:   "member",
			amount: 0,
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(nil, notFound()).Once()
				r.On("GetLatestSubscriptionByUser", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", BillingCustomerID: &custID,
				}, nil).Once()
				p.On("CreateSubscription", mock.Anything, mock.Anything).
					Return(nil, errors.New("provider down")).Once()
			},
			wantErr: errors.New("provider down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			provider := new(ProviderMock)
			tt.setupMocks(repo, provider)

			svc := newService(repo, provider)
			got, err := svc.Checkout(context.Background(), "uid-1", tt.tier, tt.amount)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, tt.wantAction, got.Action)
				assert.Equal(t, tt.wantSecret, got.ClientSecret)
			}

			repo.AssertExpectations(t)
			provider.AssertExpectations(t)
		})
	}
}
