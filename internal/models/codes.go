package models

import "time"

// Виды ваучеров.
const (
	VoucherKindTimeLimited = "time_limited"
	VoucherKindLifetime    = "lifetime"
)

// InviteCode код приглашения, обязательный при регистрации нового пользователя.
// Отключается флагом Active, записи никогда не удаляются.
type InviteCode struct {
	Code      string
	MaxUses   int
	Uses      int
	Active    bool
	ExpiresAt *time.Time
	Note      *string
	CreatedBy *string
	CreatedAt time.Time
}

// SubscriptionVoucher код, дающий подписку без оплаты.
type SubscriptionVoucher struct {
	Code         string
	Kind         string // time_limited | lifetime
	Tier         string
	DurationDays *int // nil для lifetime
	MaxUses      int
	Uses         int
	Active       bool
	ExpiresAt    *time.Time
	Note         *string
	CreatedBy    *string
	CreatedAt    time.Time
}
