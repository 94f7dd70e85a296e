// Package whitelistworker собирает воркер синхронизации вайтлиста:
// потребитель очереди задач и клиент шлюза MC Control.
package whitelistworker

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/craftgate/internal/config"
	"github.com/magabrotheeeer/craftgate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/craftgate/internal/mccontrol"
	"github.com/magabrotheeeer/craftgate/internal/services/whitelist"
)

type App struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	worker *whitelist.Worker
	logger *slog.Logger
}

// New создает и подключает зависимости воркера.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.RetriesRabbit, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.WhitelistQueues)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	controlClient := mccontrol.NewClient(cfg.BaseURLControl, cfg.SecretControl, cfg.TimeoutControl)
	worker := whitelist.NewWorker(controlClient, logger)

	return &App{
		conn:   conn,
		ch:     ch,
		worker: worker,
		logger: logger,
	}, nil
}

// Run запускает потребителя очереди и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumeMessages(ctx, a.ch, "whitelist_sync", func(body []byte) error {
		return a.worker.Handle(ctx, body)
	})
	if err != nil {
		a.logger.Error("failed to start whitelist_sync consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("whitelist worker shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
