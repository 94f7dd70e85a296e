// Package whitelist синхронизирует вайтлист игрового сервера со статусами
// подписок. Изменения статуса публикуются задачами в очередь RabbitMQ;
// воркер исполняет их через шлюз MC Control. Источником правды остаётся БД:
// ошибка публикации логируется и не валит операцию.
package whitelist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/craftgate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/craftgate/internal/lib/sl"
)

// Действия задачи синхронизации.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// RoutingKey ключ маршрутизации задач синхронизации вайтлиста.
const RoutingKey = "whitelist.sync"

// Task задача синхронизации вайтлиста.
type Task struct {
	Username string `json:"username"`
	Action   string `json:"action"`
}

// Publisher публикует задачи синхронизации в очередь.
type Publisher struct {
	ch  *amqp.Channel
	log *slog.Logger
}

// NewPublisher создает новый Publisher.
func NewPublisher(ch *amqp.Channel, log *slog.Logger) *Publisher {
	return &Publisher{ch: ch, log: log}
}

// Add ставит задачу на добавление игрока в вайтлист.
func (p *Publisher) Add(username string) {
	p.publish(Task{Username: username, Action: ActionAdd})
}

// Remove ставит задачу на снятие игрока с вайтлиста.
func (p *Publisher) Remove(username string) {
	p.publish(Task{Username: username, Action: ActionRemove})
}

func (p *Publisher) publish(task Task) {
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.WhitelistExchange, RoutingKey, task); err != nil {
		p.log.Error("failed to publish whitelist task",
			slog.String("username", task.Username),
			slog.String("action", task.Action),
			sl.Err(err))
	}
}

// ControlClient описывает операции вайтлиста шлюза MC Control.
type ControlClient interface {
	AddToWhitelist(ctx context.Context, username string) error
	RemoveFromWhitelist(ctx context.Context, username string) error
}

// Worker исполняет задачи синхронизации из очереди.
type Worker struct {
	control ControlClient
	log     *slog.Logger
}

// NewWorker создает новый Worker.
func NewWorker(control ControlClient, log *slog.Logger) *Worker {
	return &Worker{control: control, log: log}
}

// Handle обрабатывает одно сообщение очереди. Ошибка возвращает сообщение
// в очередь на повтор.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	const op = "whitelist.Handle"

	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		// Неразбираемое сообщение нет смысла возвращать в очередь.
		w.log.Error("failed to unmarshal whitelist task", sl.Err(err))
		return nil
	}

	var err error
	switch task.Action {
	case ActionAdd:
		err = w.control.AddToWhitelist(ctx, task.Username)
	case ActionRemove:
		err = w.control.RemoveFromWhitelist(ctx, task.Username)
	default:
		w.log.Error("unknown whitelist action", slog.String("action", task.Action))
		return nil
	}
	if err != nil {
		w.log.Error("whitelist sync failed",
			slog.String("username", task.Username),
			slog.String("action", task.Action),
			sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	w.log.Info("whitelist synced",
		slog.String("username", task.Username),
		slog.String("action", task.Action))
	return nil
}
