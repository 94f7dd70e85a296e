package models

import "time"

// Subscription запись подписки пользователя.
//
// CurrentPeriodEnd равен nil только для пожизненных подписок. Подписки,
// созданные по ваучеру, не имеют billing-идентификаторов вовсе.
// У пользователя со временем накапливается несколько записей (по одной на
// каждую billing-подписку); текущей считается самая свежая активная,
// при её отсутствии — самая свежая incomplete.
type Subscription struct {
	ID                    int
	UserUID               string
	BillingCustomerID     *string // ID покупателя у провайдера
	BillingSubscriptionID *string // ID подписки у провайдера
	Status                Status
	Tier                  *string    // member | ultra | admin
	MonthlyAmount         int        // Сумма в минимальных единицах валюты
	CurrentPeriodEnd      *time.Time // nil только при IsLifetime
	CancelAtPeriodEnd     bool
	IsLifetime            bool
	VoucherCode           *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// BillingUpdate данные события провайдера, применяемые к локальной записи.
type BillingUpdate struct {
	BillingSubscriptionID string
	BillingCustomerID     string
	Status                Status
	Tier                  *string
	MonthlyAmount         int
	CurrentPeriodEnd      *time.Time
	CancelAtPeriodEnd     bool
	// ForceActive игнорирует статус в событии и выставляет active:
	// используется для invoice.paid и payment_intent.succeeded, когда факт
	// оплаты известен раньше, чем провайдер обновит поле статуса.
	ForceActive bool
}

// StatusInfo проекция текущей подписки для ответа API.
type StatusInfo struct {
	Status            string     `json:"status"`
	Tier              *string    `json:"tier"`
	IsLifetime        bool       `json:"is_lifetime"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	MonthlyAmount     int        `json:"monthly_amount"`
}
