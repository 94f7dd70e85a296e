package reconciler_test

import (
	"context"
	"encoding/json"
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
	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/services/reconciler"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) ApplyBillingUpdate(ctx context.Context, upd models.BillingUpdate, createUserUID string) (*models.Subscription, bool, error) {
	args := m.Called(ctx, upd, createUserUID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Subscription), args.Bool(1), args.Error(2)
}

func (m *RepoMock) GetSubscriptionByBillingSubID(ctx context.Context, billingSubID string) (*models.Subscription, error) {
	args := m.Called(ctx, billingSubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetMinecraftAccount(ctx context.Context, userUID string) (*models.MinecraftAccount, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MinecraftAccount), args.Error(1)
}

type ProviderMock struct {
	mock.Mock
}

func (m *ProviderMock) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

type WhitelistMock struct {
	mock.Mock
}

func (m *WhitelistMock) Add(username string)    { m.Called(username) }
func (m *WhitelistMock) Remove(username string) { m.Called(username) }

func newService(repo *RepoMock, provider *ProviderMock, whitelist *WhitelistMock) *reconciler.ReconcilerService {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return reconciler.New(repo, provider, whitelist, log)
}

func makeEvent(t *testing.T, eventType string, object any) billing.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	ev := billing.Event{ID: "evt_1", Type: eventType}
	ev.Data.Object = raw
	return ev
}

func TestReconcilerService_HandleEvent(t *testing.T) {
	tier := "member"
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()

	providerSub := &billing.Subscription{
		ID:               "sub_123",
		CustomerID:       "cus_123",
		Status:           "active",
		CurrentPeriodEnd: periodEnd,
		Items:            []billing.Item{{PriceID: "price_member", UnitAmount: 500}},
		Metadata:         map[string]string{"user_uid": "uid-1", "tier": "member"},
	}

	activeRow := &models.Subscription{
		ID: 1, UserUID: "uid-1", Status: models.StatusActive, Tier: &tier,
	}

	tests := []struct {
		name       string
		event      billing.Event
		setupMocks func(r *RepoMock, p *ProviderMock, w *WhitelistMock)
		wantErr    bool
	}{
		{
			name: "checkout completed activates and whitelists",
			event: makeEvent(t, "checkout.session.completed", billing.CheckoutSession{
				ID: "cs_1", CustomerID: "cus_123", SubscriptionID: "sub_123",
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				p.On("GetSubscription", mock.Anything, "sub_123").Return(providerSub, nil).Once()
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.BillingSubscriptionID == "sub_123" &&
						upd.Status == models.StatusActive && !upd.ForceActive
				}), "uid-1").Return(activeRow, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
				w.On("Add", "Notch").Once()
			},
		},
		{
			name: "checkout session without subscription is dropped",
			event: makeEvent(t, "checkout.session.completed", billing.CheckoutSession{
				ID: "cs_2", CustomerID: "cus_123",
			}),
			setupMocks: func(_ *RepoMock, _ *ProviderMock, _ *WhitelistMock) {},
		},
		{
			name: "first invoice paid forces active even if provider is stale",
			event: makeEvent(t, "invoice.paid", billing.Invoice{
				ID: "in_1", SubscriptionID: "sub_123", CustomerID: "cus_123",
				Paid: true, BillingReason: "subscription_create",
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				stale := *providerSub
				stale.Status = "incomplete"
				p.On("GetSubscription", mock.Anything, "sub_123").Return(&stale, nil).Once()
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.ForceActive && upd.BillingSubscriptionID == "sub_123"
				}), "uid-1").Return(activeRow, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
			},
		},
		{
			name: "invoice paid survives provider fetch failure",
			event: makeEvent(t, "invoice.paid", billing.Invoice{
				ID: "in_2", SubscriptionID: "sub_123", CustomerID: "cus_123",
				Paid: true, BillingReason: "subscription_create",
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				p.On("GetSubscription", mock.Anything, "sub_123").
					Return(nil, errors.New("provider down")).Once()
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.ForceActive && upd.CurrentPeriodEnd != nil &&
						upd.CurrentPeriodEnd.After(time.Now().Add(29*24*time.Hour))
				}), "").Return(activeRow, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
			},
		},
		{
			name: "subscription updated to past_due removes from whitelist",
			event: makeEvent(t, "customer.subscription.updated", billing.Subscription{
				ID: "sub_123", CustomerID: "cus_123", Status: "past_due",
				Metadata: map[string]string{"user_uid": "uid-1"},
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				pastDue := &models.Subscription{ID: 1, UserUID: "uid-1", Status: models.StatusPastDue}
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.Status == models.StatusPastDue
				}), "uid-1").Return(pastDue, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
				w.On("Remove", "Notch").Once()
			},
		},
		{
			name: "cancel at period end keeps access",
			event: makeEvent(t, "customer.subscription.updated", billing.Subscription{
				ID: "sub_123", CustomerID: "cus_123", Status: "active",
				CancelAtPeriodEnd: true, CurrentPeriodEnd: periodEnd,
				Metadata: map[string]string{"user_uid": "uid-1"},
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				cancelling := &models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive, CancelAtPeriodEnd: true,
				}
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.Status == models.StatusActive && upd.CancelAtPeriodEnd
				}), "uid-1").Return(cancelling, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
				w.On("Add", "Notch").Once()
			},
		},
		{
			name: "rejected transition skips whitelist sync",
			event: makeEvent(t, "customer.subscription.updated", billing.Subscription{
				ID: "sub_123", CustomerID: "cus_123", Status: "incomplete",
				Metadata: map[string]string{"user_uid": "uid-1"},
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				r.On("ApplyBillingUpdate", mock.Anything, mock.Anything, "uid-1").
					Return(activeRow, false, nil).Once()
			},
		},
		{
			name: "subscription deleted cancels and removes access",
			event: makeEvent(t, "customer.subscription.deleted", billing.Subscription{
				ID: "sub_123", CustomerID: "cus_123", Status: "canceled",
				Metadata: map[string]string{"user_uid": "uid-1"},
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				canceled := &models.Subscription{ID: 1, UserUID: "uid-1", Status: models.StatusCanceled}
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.Status == models.StatusCanceled
				}), "").Return(canceled, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
				w.On("Remove", "Notch").Once()
			},
		},
		{
			name: "payment intent succeeded activates referenced subscription",
			event: makeEvent(t, "payment_intent.succeeded", billing.PaymentIntent{
				ID: "pi_1", Status: "succeeded",
				Metadata: map[string]string{"subscription_id": "sub_123"},
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				p.On("GetSubscription", mock.Anything, "sub_123").Return(providerSub, nil).Once()
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.ForceActive
				}), "uid-1").Return(activeRow, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
			},
		},
		{
			name: "payment intent without subscription metadata is dropped",
			event: makeEvent(t, "payment_intent.succeeded", billing.PaymentIntent{
				ID: "pi_2", Status: "succeeded",
			}),
			setupMocks: func(_ *RepoMock, _ *ProviderMock, _ *WhitelistMock) {},
		},
		{
			name: "event matching no record is accepted",
			event: makeEvent(t, "customer.subscription.updated", billing.Subscription{
				ID: "sub_unknown", CustomerID: "cus_unknown", Status: "canceled",
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				r.On("ApplyBillingUpdate", mock.Anything, mock.Anything, "").
					Return(nil, false, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
			},
		},
		{
			name:       "unknown event type is ignored",
			event:      makeEvent(t, "charge.refunded", map[string]string{"id": "ch_1"}),
			setupMocks: func(_ *RepoMock, _ *ProviderMock, _ *WhitelistMock) {},
		},
		{
			name: "storage failure propagates for redelivery",
			event: makeEvent(t, "customer.subscription.updated", billing.Subscription{
				ID: "sub_123", CustomerID: "cus_123", Status: "active",
			}),
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				r.On("ApplyBillingUpdate", mock.Anything, mock.Anything, "").
					Return(nil, false, errors.New("connection refused")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			provider := new(ProviderMock)
			whitelist := new(WhitelistMock)
			tt.setupMocks(repo, provider, whitelist)

			svc := newService(repo, provider, whitelist)
			err := svc.HandleEvent(context.Background(), tt.event)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			repo.AssertExpectations(t)
			provider.AssertExpectations(t)
			whitelist.AssertExpectations(t)
		})
	}
}

func TestReconcilerService_ConfirmSubscription(t *testing.T) {
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, p *ProviderMock, w *WhitelistMock)
		wantStatus models.Status
		wantErr    bool
	}{
		{
			name: "provider reports active",
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				r.On("GetSubscriptionByBillingSubID", mock.Anything, "sub_123").
					Return(&models.Subscription{
						ID: 1, UserUID: "uid-1", Status: models.StatusIncomplete,
					}, nil).Once()
				p.On("GetSubscription", mock.Anything, "sub_123").Return(&billing.Subscription{
					ID: "sub_123", CustomerID: "cus_123", Status: "active",
					CurrentPeriodEnd: periodEnd,
					Metadata:         map[string]string{"user_uid": "uid-1"},
				}, nil).Once()
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.ForceActive
				}), "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive,
				}, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
				w.On("Add", "Notch").Once()
			},
			wantStatus: models.StatusActive,
		},
		{
			name: "incomplete subscription with paid invoice is confirmed",
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				r.On("GetSubscriptionByBillingSubID", mock.Anything, "sub_123").
					Return(&models.Subscription{
						ID: 1, UserUID: "uid-1", Status: models.StatusIncomplete,
					}, nil).Once()
				p.On("GetSubscription", mock.Anything, "sub_123").Return(&billing.Subscription{
					ID: "sub_123", CustomerID: "cus_123", Status: "incomplete",
					LatestInvoice: &billing.Invoice{ID: "in_1", Paid: true},
					Metadata:      map[string]string{"user_uid": "uid-1"},
				}, nil).Once()
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.ForceActive
				}), "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive,
				}, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
			},
			wantStatus: models.StatusActive,
		},
		{
			name: "unpaid incomplete subscription stays incomplete",
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				r.On("GetSubscriptionByBillingSubID", mock.Anything, "sub_123").
					Return(&models.Subscription{
						ID: 1, UserUID: "uid-1", Status: models.StatusIncomplete,
					}, nil).Once()
				p.On("GetSubscription", mock.Anything, "sub_123").Return(&billing.Subscription{
					ID: "sub_123", CustomerID: "cus_123", Status: "incomplete",
					Metadata: map[string]string{"user_uid": "uid-1"},
				}, nil).Once()
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return !upd.ForceActive && upd.Status == models.StatusIncomplete
				}), "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusIncomplete,
				}, false, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
			},
			wantStatus: models.StatusIncomplete,
		},
		{
			name: "provider unreachable trusts local incomplete record",
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				p.On("GetSubscription", mock.Anything, "sub_123").
					Return(nil, errors.New("timeout")).Once()
				r.On("GetSubscriptionByBillingSubID", mock.Anything, "sub_123").
					Return(&models.Subscription{
						ID: 1, UserUID: "uid-1", Status: models.StatusIncomplete,
					}, nil).Once()
				r.On("ApplyBillingUpdate", mock.Anything, mock.MatchedBy(func(upd models.BillingUpdate) bool {
					return upd.ForceActive && upd.CurrentPeriodEnd != nil
				}), "").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive,
				}, true, nil).Once()
				r.On("GetMinecraftAccount", mock.Anything, "uid-1").
					Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
				w.On("Add", "Notch").Once()
			},
			wantStatus: models.StatusActive,
		},
		{
			name: "provider unreachable leaves settled record as is",
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				p.On("GetSubscription", mock.Anything, "sub_123").
					Return(nil, errors.New("timeout")).Once()
				r.On("GetSubscriptionByBillingSubID", mock.Anything, "sub_123").
					Return(&models.Subscription{
						ID: 1, UserUID: "uid-1", Status: models.StatusActive,
					}, nil).Once()
			},
			wantStatus: models.StatusActive,
		},
		{
			name: "provider unreachable and no local record",
			setupMocks: func(r *RepoMock, p *ProviderMock, w *WhitelistMock) {
				r.On("GetSubscriptionByBillingSubID", mock.Anything, "sub_123").
					Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
				p.On("GetSubscription", mock.Anything, "sub_123").
					Return(nil, errors.New("timeout")).Once()
			},
			wantErr: true,
		},
		{
			name: "unknown locally with foreign provider metadata is rejected",
			setupMocks: func(r *RepoMock, p *ProviderMock, _ *WhitelistMock) {
				r.On("GetSubscriptionByBillingSubID", mock.Anything, "sub_123").
					Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
				p.On("GetSubscription", mock.Anything, "sub_123").Return(&billing.Subscription{
					ID: "sub_123", CustomerID: "cus_123", Status: "active",
					Metadata: map[string]string{"user_uid": "uid-2"},
				}, nil).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			provider := new(ProviderMock)
			whitelist := new(WhitelistMock)
			tt.setupMocks(repo, provider, whitelist)

			svc := newService(repo, provider, whitelist)
			got, err := svc.ConfirmSubscription(context.Background(), "uid-1", "sub_123")

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got)

			repo.AssertExpectations(t)
			provider.AssertExpectations(t)
			whitelist.AssertExpectations(t)
		})
	}
}

// Чужой billing-идентификатор читается как несуществующий: подтверждение
// не трогает ни провайдера, ни запись, даже при недоступном провайдере.
func TestReconcilerService_ConfirmSubscription_ForeignSubscription(t *testing.T) {
	repo := new(RepoMock)
	provider := new(ProviderMock)
	whitelist := new(WhitelistMock)

	repo.On("GetSubscriptionByBillingSubID", mock.Anything, "sub_123").
		Return(&models.Subscription{
			ID: 1, UserUID: "uid-owner", Status: models.StatusIncomplete,
		}, nil).Once()

	svc := newService(repo, provider, whitelist)
	_, err := svc.ConfirmSubscription(context.Background(), "uid-intruder", "sub_123")

	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "ApplyBillingUpdate", mock.Anything, mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
}
