package minecraft_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/craftgate/internal/models"
	"github.com/magabrotheeeer/craftgate/internal/services/minecraft"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) UpsertMinecraftAccount(ctx context.Context, acc models.MinecraftAccount) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *RepoMock) GetMinecraftAccount(ctx context.Context, userUID string) (*models.MinecraftAccount, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MinecraftAccount), args.Error(1)
}

func (m *RepoMock) DeleteMinecraftAccount(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

func (m *RepoMock) UpdateNickname(ctx context.Context, userUID, nickname string) error {
	args := m.Called(ctx, userUID, nickname)
	return args.Error(0)
}

func (m *RepoMock) GetCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

type CodeStoreMock struct {
	mock.Mock
}

func (m *CodeStoreMock) PutLinkCode(ctx context.Context, linkCode, userUID string) error {
	args := m.Called(ctx, linkCode, userUID)
	return args.Error(0)
}

func (m *CodeStoreMock) TakeLinkCode(ctx context.Context, linkCode string) (string, bool, error) {
	args := m.Called(ctx, linkCode)
	return args.String(0), args.Bool(1), args.Error(2)
}

type ControlMock struct {
	mock.Mock
}

func (m *ControlMock) SetNickname(ctx context.Context, username, nickname string) error {
	args := m.Called(ctx, username, nickname)
	return args.Error(0)
}

type WhitelistMock struct {
	mock.Mock
}

func (m *WhitelistMock) Add(username string)    { m.Called(username) }
func (m *WhitelistMock) Remove(username string) { m.Called(username) }

func newService(repo *RepoMock, codes *CodeStoreMock, control *ControlMock, whitelist *WhitelistMock) *minecraft.MinecraftService {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return minecraft.New(repo, codes, control, whitelist, log)
}

func TestMinecraftService_IssueLinkCode(t *testing.T) {
	repo := new(RepoMock)
	codes := new(CodeStoreMock)
	control := new(ControlMock)
	whitelist := new(WhitelistMock)

	codes.On("PutLinkCode", mock.Anything, mock.MatchedBy(func(c string) bool {
		return regexp.MustCompile(`^[A-Z2-9]{4}-[A-Z2-9]{4}$`).MatchString(c)
	}), "uid-1").Return(nil).Once()

	svc := newService(repo, codes, control, whitelist)
	got, err := svc.IssueLinkCode(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Len(t, got, 9)

	codes.AssertExpectations(t)
}

func TestMinecraftService_CompleteLink(t *testing.T) {
	future := time.Now().AddDate(0, 1, 0)

	tests := []struct {
		name       string
		linkCode   string
		setupMocks func(r *RepoMock, c *CodeStoreMock, w *WhitelistMock)
		wantErr    error
	}{
		{
			name:     "subscriber is whitelisted after linking",
			linkCode: "k7pd-3mqx",
			setupMocks: func(r *RepoMock, c *CodeStoreMock, w *WhitelistMock) {
				c.On("TakeLinkCode", mock.Anything, "K7PD-3MQX").Return("uid-1", true, nil).Once()
				r.On("UpsertMinecraftAccount", mock.Anything, models.MinecraftAccount{
					UserUID:    "uid-1",
					MojangUUID: "069a79f4-44e9-4726-a5be-fca90e38aaf5",
					MCUsername: "Notch",
				}).Return(nil).Once()
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
					ID: 1, UserUID: "uid-1", Status: models.StatusActive, CurrentPeriodEnd: &future,
				}, nil).Once()
				w.On("Add", "Notch").Once()
			},
		},
		{
			name:     "linking without subscription skips whitelist",
			linkCode: "K7PD-3MQX",
			setupMocks: func(r *RepoMock, c *CodeStoreMock, w *WhitelistMock) {
				c.On("TakeLinkCode", mock.Anything, "K7PD-3MQX").Return("uid-1", true, nil).Once()
				r.On("UpsertMinecraftAccount", mock.Anything, mock.Anything).Return(nil).Once()
				r.On("GetCurrentSubscription", mock.Anything, "uid-1").
					Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()
			},
		},
		{
			name:     "expired code is rejected",
			linkCode: "DEAD-CODE",
			setupMocks: func(_ *RepoMock, c *CodeStoreMock, _ *WhitelistMock) {
				c.On("TakeLinkCode", mock.Anything, "DEAD-CODE").Return("", false, nil).Once()
			},
			wantErr: minecraft.ErrInvalidLinkCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			codes := new(CodeStoreMock)
			control := new(ControlMock)
			whitelist := new(WhitelistMock)
			tt.setupMocks(repo, codes, whitelist)

			svc := newService(repo, codes, control, whitelist)
			err := svc.CompleteLink(context.Background(), tt.linkCode,
				"069a79f4-44e9-4726-a5be-fca90e38aaf5", "Notch")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			repo.AssertExpectations(t)
			codes.AssertExpectations(t)
			whitelist.AssertExpectations(t)
		})
	}
}

func TestMinecraftService_Unlink(t *testing.T) {
	t.Run("unlink removes player from whitelist", func(t *testing.T) {
		repo := new(RepoMock)
		whitelist := new(WhitelistMock)

		repo.On("GetMinecraftAccount", mock.Anything, "uid-1").
			Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
		repo.On("DeleteMinecraftAccount", mock.Anything, "uid-1").Return(nil).Once()
		whitelist.On("Remove", "Notch").Once()

		svc := newService(repo, new(CodeStoreMock), new(ControlMock), whitelist)
		require.NoError(t, svc.Unlink(context.Background(), "uid-1"))

		repo.AssertExpectations(t)
		whitelist.AssertExpectations(t)
	})

	t.Run("unlink without linked account", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetMinecraftAccount", mock.Anything, "uid-1").
			Return(nil, fmt.Errorf("storage: %w", repository.ErrNotFound)).Once()

		svc := newService(repo, new(CodeStoreMock), new(ControlMock), new(WhitelistMock))
		require.ErrorIs(t, svc.Unlink(context.Background(), "uid-1"), minecraft.ErrNotLinked)
	})
}

func TestMinecraftService_SetNickname(t *testing.T) {
	t.Run("nickname is stored and pushed to server", func(t *testing.T) {
		repo := new(RepoMock)
		control := new(ControlMock)

		repo.On("GetMinecraftAccount", mock.Anything, "uid-1").
			Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
		repo.On("UpdateNickname", mock.Anything, "uid-1", "Творец").Return(nil).Once()
		control.On("SetNickname", mock.Anything, "Notch", "Творец").Return(nil).Once()

		svc := newService(repo, new(CodeStoreMock), control, new(WhitelistMock))
		require.NoError(t, svc.SetNickname(context.Background(), "uid-1", "Творец"))

		repo.AssertExpectations(t)
		control.AssertExpectations(t)
	})

	t.Run("gateway failure does not fail the request", func(t *testing.T) {
		repo := new(RepoMock)
		control := new(ControlMock)

		repo.On("GetMinecraftAccount", mock.Anything, "uid-1").
			Return(&models.MinecraftAccount{UserUID: "uid-1", MCUsername: "Notch"}, nil).Once()
		repo.On("UpdateNickname", mock.Anything, "uid-1", "Творец").Return(nil).Once()
		control.On("SetNickname", mock.Anything, "Notch", "Творец").
			Return(errors.New("gateway down")).Once()

		svc := newService(repo, new(CodeStoreMock), control, new(WhitelistMock))
		require.NoError(t, svc.SetNickname(context.Background(), "uid-1", "Творец"))
	})
}
