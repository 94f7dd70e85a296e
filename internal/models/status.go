// Package models содержит доменные структуры сообщества: пользователей,
// подписки, привязанные Minecraft-аккаунты и коды приглашений/ваучеров,
// а также замкнутое множество статусов подписки с единственной функцией
// перехода, применяемой и вебхук-обработчиком, и подтверждающим опросом.
package models

import "time"

// Status статус подписки. Замкнутое множество значений вместо свободной строки.
type Status string

const (
	// StatusIncomplete подписка создана, платёж ещё не подтверждён.
	StatusIncomplete Status = "incomplete"
	// StatusActive подписка оплачена, доступ к серверу открыт.
	StatusActive Status = "active"
	// StatusPastDue очередной платёж не прошёл.
	StatusPastDue Status = "past_due"
	// StatusCanceled подписка отменена на стороне провайдера.
	StatusCanceled Status = "canceled"
	// StatusExpired срок подписки истёк (ленивая фиксация при чтении).
	StatusExpired Status = "expired"
)

// ValidStatus сообщает, входит ли значение в замкнутое множество статусов.
func ValidStatus(s Status) bool {
	switch s {
	case StatusIncomplete, StatusActive, StatusPastDue, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// ApplyBillingEvent решает, какой статус должна получить локальная запись после
// события провайдера. Возвращает новый статус и признак применимости события.
//
// Правила:
//  1. Событие для чужой billing-подписки никогда не перезаписывает активную
//     запись: устаревший вебхук старой подписки не должен затирать новую.
//  2. Активная запись не понижается до incomplete для той же billing-подписки:
//     поле статуса у провайдера отстаёт от факта успешной оплаты.
//  3. В остальных случаях принимается входящий статус.
//
// Вебхук-обработчик и подтверждающий опрос обязаны ходить только через эту
// функцию, чтобы правила были определены ровно один раз.
func ApplyBillingEvent(current Status, storedSubID string, incoming Status, eventSubID string) (Status, bool) {
	if !ValidStatus(incoming) {
		return current, false
	}
	if current == StatusActive && storedSubID != "" && eventSubID != "" && eventSubID != storedSubID {
		return current, false
	}
	if current == StatusActive && incoming == StatusIncomplete {
		return current, false
	}
	return incoming, true
}

// EffectiveStatus вычисляет действующий статус записи на момент now.
// Истечение — чистая функция от (currentPeriodEnd, isLifetime, now):
// просроченная непожизненная запись читается как expired независимо от
// сохранённого статуса, сохранённое значение — не вход этого решения.
func EffectiveStatus(stored Status, currentPeriodEnd *time.Time, isLifetime bool, now time.Time) Status {
	if !isLifetime && currentPeriodEnd != nil && currentPeriodEnd.Before(now) {
		return StatusExpired
	}
	return stored
}

// RemovesAccess сообщает, должен ли статус снимать игрока с вайтлиста.
// Флаг cancel_at_period_end (отмена в будущем) доступ не снимает.
func RemovesAccess(s Status) bool {
	return s == StatusCanceled || s == StatusPastDue || s == StatusExpired
}
