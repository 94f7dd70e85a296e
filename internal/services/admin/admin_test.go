package admin_test

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/services/admin"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) CreateInviteCode(ctx context.Context, code models.InviteCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *RepoMock) DeactivateInviteCode(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *RepoMock) ListInviteCodes(ctx context.Context) ([]*models.InviteCode, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InviteCode), args.Error(1)
}

func (m *RepoMock) CreateVoucher(ctx context.Context, v models.SubscriptionVoucher) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *RepoMock) ListVouchers(ctx context.Context) ([]*models.SubscriptionVoucher, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SubscriptionVoucher), args.Error(1)
}

func (m *RepoMock) ListPlayers(ctx context.Context, limit, offset int) ([]*models.PlayerInfo, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PlayerInfo), args.Error(1)
}

type ControlMock struct {
	mock.Mock
}

func (m *ControlMock) Announce(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *ControlMock) Kick(ctx context.Context, username, reason string) error {
	args := m.Called(ctx, username, reason)
	return args.Error(0)
}

func (m *ControlMock) SetGroup(ctx context.Context, username, group string) error {
	args := m.Called(ctx, username, group)
	return args.Error(0)
}

func (m *ControlMock) RunCommand(ctx context.Context, command string) (string, error) {
	args := m.Called(ctx, command)
	return args.String(0), args.Error(1)
}

func (m *ControlMock) ListWhitelist(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

var codePattern = regexp.MustCompile(`^[A-Z2-9]{4}-[A-Z2-9]{4}$`)

func newService(repo *RepoMock, control *ControlMock) *admin.AdminService {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return admin.New(repo, control, log)
}

func TestAdminService_CreateInvite(t *testing.T) {
	t.Run("generated code", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("CreateInviteCode", mock.Anything, mock.MatchedBy(func(ic models.InviteCode) bool {
			return codePattern.MatchString(ic.Code) && ic.MaxUses == 1 &&
				ic.CreatedBy != nil && *ic.CreatedBy == "admin-1"
		})).Return(nil).Once()

		svc := newService(repo, new(ControlMock))
		got, err := svc.CreateInvite(context.Background(), admin.CreateInviteParams{
			CreatedBy: "admin-1",
		})
		require.NoError(t, err)
		assert.Regexp(t, codePattern, got)
		repo.AssertExpectations(t)
	})

	t.Run("custom code is normalized", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("CreateInviteCode", mock.Anything, mock.MatchedBy(func(ic models.InviteCode) bool {
			return ic.Code == "WELCOME-2026" && ic.MaxUses == 10
		})).Return(nil).Once()

		svc := newService(repo, new(ControlMock))
		got, err := svc.CreateInvite(context.Background(), admin.CreateInviteParams{
			Code: " welcome-2026 ", MaxUses: 10, CreatedBy: "admin-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "WELCOME-2026", got)
		repo.AssertExpectations(t)
	})
}

func TestAdminService_CreateVoucher(t *testing.T) {
	days := 90

	tests := []struct {
		name       string
		params     admin.CreateVoucherParams
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name: "time limited voucher",
			params: admin.CreateVoucherParams{
				Kind: models.VoucherKindTimeLimited, Tier: "member",
				DurationDays: &days, MaxUses: 5, CreatedBy: "admin-1",
			},
			setupMocks: func(r *RepoMock) {
				r.On("CreateVoucher", mock.Anything, mock.MatchedBy(func(v models.SubscriptionVoucher) bool {
					return v.Kind == models.VoucherKindTimeLimited &&
						v.DurationDays != nil && *v.DurationDays == 90 && v.MaxUses == 5
				})).Return(nil).Once()
			},
		},
		{
			name: "lifetime voucher drops duration",
			params: admin.CreateVoucherParams{
				Kind: models.VoucherKindLifetime, Tier: "ultra",
				DurationDays: &days, CreatedBy: "admin-1",
			},
			setupMocks: func(r *RepoMock) {
				r.On("CreateVoucher", mock.Anything, mock.MatchedBy(func(v models.SubscriptionVoucher) bool {
					return v.Kind == models.VoucherKindLifetime && v.DurationDays == nil && v.MaxUses == 1
				})).Return(nil).Once()
			},
		},
		{
			name: "unknown kind is rejected",
			params: admin.CreateVoucherParams{
				Kind: "forever", Tier: "member", CreatedBy: "admin-1",
			},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    admin.ErrInvalidVoucherKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)

			svc := newService(repo, new(ControlMock))
			got, err := svc.CreateVoucher(context.Background(), tt.params)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Regexp(t, codePattern, got)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestAdminService_ListPlayers(t *testing.T) {
	repo := new(RepoMock)
	repo.On("ListPlayers", mock.Anything, 50, 0).
		Return([]*models.PlayerInfo{{UUID: "uid-1", Username: "steve"}}, nil).Once()

	svc := newService(repo, new(ControlMock))
	got, err := svc.ListPlayers(context.Background(), 0, -5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "steve", got[0].Username)

	repo.AssertExpectations(t)
}

func TestAdminService_ServerCommands(t *testing.T) {
	control := new(ControlMock)
	control.On("Announce", mock.Anything, "restart in 5 minutes").Return(nil).Once()
	control.On("Kick", mock.Anything, "Notch", "afk").Return(nil).Once()
	control.On("SetGroup", mock.Anything, "Notch", "ultra").Return(nil).Once()
	control.On("RunCommand", mock.Anything, "list").Return("2 players online", nil).Once()
	control.On("ListWhitelist", mock.Anything).Return([]string{"Notch"}, nil).Once()

	svc := newService(new(RepoMock), control)
	ctx := context.Background()

	require.NoError(t, svc.Announce(ctx, "restart in 5 minutes"))
	require.NoError(t, svc.Kick(ctx, "Notch", "afk"))
	require.NoError(t, svc.SetGroup(ctx, "Notch", "ultra"))

	out, err := svc.RunCommand(ctx, "admin-1", "list")
	require.NoError(t, err)
	assert.Equal(t, "2 players online", out)

	players, err := svc.ListWhitelist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Notch"}, players)

	control.AssertExpectations(t)
}
