// Package craftgate собирает основное приложение: хранилище, кэш, очередь,
// клиенты внешних сервисов, бизнес-сервисы и HTTP-сервер.
package craftgate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/craftgate/internal/billing"
	"github.com/magabrotheeeer/craftgate/internal/cache"
	"github.com/magabrotheeeer/craftgate/internal/config"
	"github.com/magabrotheeeer/craftgate/internal/lib/jwt"
	"github.com/magabrotheeeer/craftgate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/craftgate/internal/mccontrol"
	"github.com/magabrotheeeer/craftgate/internal/migrations"
	adminservice "github.com/magabrotheeeer/craftgate/internal/services/admin"
	authservice "github.com/magabrotheeeer/craftgate/internal/services/auth"
	checkoutservice "github.com/magabrotheeeer/craftgate/internal/services/checkout"
	minecraftservice "github.com/magabrotheeeer/craftgate/internal/services/minecraft"
	reconcilerservice "github.com/magabrotheeeer/craftgate/internal/services/reconciler"
	subservice "github.com/magabrotheeeer/craftgate/internal/services/subscription"
	voucherservice "github.com/magabrotheeeer/craftgate/internal/services/voucher"
	"github.com/magabrotheeeer/craftgate/internal/services/whitelist"
	"github.com/magabrotheeeer/craftgate/internal/storage/repository"
)

// App инкапсулирует HTTP-сервер и подключения внешних ресурсов.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	rabbitConn *amqp.Connection
}

// New создает и подключает все зависимости основного приложения.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.RetriesRabbit, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	rabbitCh, err := rabbitmq.SetupChannel(rabbitConn, rabbitmq.WhitelistQueues)
	if err != nil {
		return nil, err
	}

	billingClient := billing.NewClient(cfg.APIURLBilling, cfg.SecretKeyBilling)
	controlClient := mccontrol.NewClient(cfg.BaseURLControl, cfg.SecretControl, cfg.TimeoutControl)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	whitelistPub := whitelist.NewPublisher(rabbitCh, logger)

	authService := authservice.NewAuthService(db, jwtMaker)
	subscriptionService := subservice.New(db, billingClient, whitelistPub, logger)
	checkoutService := checkoutservice.New(db, billingClient, cfg.Prices, logger)
	reconcilerService := reconcilerservice.New(db, billingClient, whitelistPub, logger)
	voucherService := voucherservice.New(db, whitelistPub, logger)
	minecraftService := minecraftservice.New(db, cacheRedis, controlClient, whitelistPub, logger)
	adminService := adminservice.New(db, controlClient, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, RouteServices{
		Auth:          authService,
		Subscription:  subscriptionService,
		Checkout:      checkoutService,
		Reconciler:    reconcilerService,
		Voucher:       voucherService,
		Minecraft:     minecraftService,
		Admin:         adminService,
		WebhookSecret: cfg.WebhookSecret,
		ControlSecret: cfg.SecretControl,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		db:         db,
		rabbitConn: rabbitConn,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.db.DB.Close()
		_ = a.rabbitConn.Close()
		return err
	}
}
