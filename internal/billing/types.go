// Package billing реализует HTTP-клиент платёжного провайдера:
// покупатели, подписки, инвойсы и платёжные интенты.
package billing

import (
	"encoding/json"
	"time"
)

// Event вебхук-событие провайдера. Data.Object декодируется по Type.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession сессия оплаты, завершение которой провайдер сообщает
// событием checkout.session.completed.
type CheckoutSession struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer"`
	SubscriptionID string            `json:"subscription"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Customer покупатель на стороне провайдера.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PriceData произвольная цена для тарифа с настраиваемой суммой.
type PriceData struct {
	ProductID  string `json:"product_id"`
	UnitAmount int    `json:"unit_amount"` // сумма за месяц в минимальных единицах
	Currency   string `json:"currency"`
}

// Item позиция подписки.
type Item struct {
	ID               string `json:"id"`
	PriceID          string `json:"price_id"`
	UnitAmount       int    `json:"unit_amount"`
	CurrentPeriodEnd int64  `json:"current_period_end,omitempty"`
}

// Subscription подписка на стороне провайдера.
//
// Поле CurrentPeriodEnd у провайдера появляется то на уровне подписки,
// то на уровне позиции; PeriodEnd читает оба места.
type Subscription struct {
	ID                string            `json:"id"`
	CustomerID        string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end,omitempty"`
	Items             []Item            `json:"items"`
	LatestInvoice     *Invoice          `json:"latest_invoice,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// PeriodEnd возвращает дату окончания оплаченного периода, если провайдер её
// сообщил хоть в одном из известных мест ответа.
func (s *Subscription) PeriodEnd() *time.Time {
	ts := s.CurrentPeriodEnd
	if ts == 0 {
		for _, it := range s.Items {
			if it.CurrentPeriodEnd != 0 {
				ts = it.CurrentPeriodEnd
				break
			}
		}
	}
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

// Amount возвращает месячную сумму первой позиции подписки.
func (s *Subscription) Amount() int {
	if len(s.Items) == 0 {
		return 0
	}
	return s.Items[0].UnitAmount
}

// Invoice инвойс подписки.
type Invoice struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription"`
	CustomerID     string         `json:"customer"`
	Status         string         `json:"status"`
	Paid           bool           `json:"paid"`
	BillingReason  string         `json:"billing_reason"` // subscription_create для первого инвойса
	AmountDue      int            `json:"amount_due"`
	PaymentIntent  *PaymentIntent `json:"payment_intent,omitempty"`
}

// PaymentIntent платёжный интент, несёт client_secret для виджета оплаты.
type PaymentIntent struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CreateSubscriptionRequest запрос на создание подписки.
// Задаётся либо PriceID из таблицы тарифов, либо PriceData для произвольной суммы.
type CreateSubscriptionRequest struct {
	CustomerID      string            `json:"customer"`
	PriceID         string            `json:"price_id,omitempty"`
	PriceData       *PriceData        `json:"price_data,omitempty"`
	PaymentBehavior string            `json:"payment_behavior"` // default_incomplete
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ChangePriceRequest запрос на смену тарифа действующей подписки с пропорцией.
type ChangePriceRequest struct {
	PriceID           string     `json:"price_id,omitempty"`
	PriceData         *PriceData `json:"price_data,omitempty"`
	ProrationBehavior string     `json:"proration_behavior"` // create_prorations
}
