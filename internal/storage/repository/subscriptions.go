package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/craftgate/internal/models"
)

const subscriptionColumns = `id, user_uid, billing_customer_id, billing_subscription_id,
	status, tier, monthly_amount, current_period_end, cancel_at_period_end,
	is_lifetime, voucher_code, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var status string
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.BillingCustomerID, &sub.BillingSubscriptionID,
		&status, &sub.Tier, &sub.MonthlyAmount, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.IsLifetime, &sub.VoucherCode, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Status = models.Status(status)
	return &sub, nil
}

// CreateSubscription вставляет новую запись подписки и возвращает её ID.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (user_uid, billing_customer_id, billing_subscription_id,
			      status, tier, monthly_amount, current_period_end, cancel_at_period_end,
			      is_lifetime, voucher_code)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		sub.UserUID, sub.BillingCustomerID, sub.BillingSubscriptionID,
		string(sub.Status), sub.Tier, sub.MonthlyAmount, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.IsLifetime, sub.VoucherCode).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetCurrentSubscription возвращает текущую подписку пользователя:
// самую свежую активную, при её отсутствии — самую свежую incomplete,
// затем любую самую свежую.
func (s *Storage) GetCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetCurrentSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY CASE status
				  WHEN 'active' THEN 0
				  WHEN 'incomplete' THEN 1
				  ELSE 2 END,
				  created_at DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetLatestSubscriptionByUser возвращает самую свежую запись подписки пользователя
// независимо от статуса.
func (s *Storage) GetLatestSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetLatestSubscriptionByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY created_at DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscriptionByBillingSubID возвращает запись по billing-идентификатору подписки.
func (s *Storage) GetSubscriptionByBillingSubID(ctx context.Context, billingSubID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByBillingSubID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE billing_subscription_id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, billingSubID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// SetBillingCustomerID записывает billing-идентификатор покупателя на запись подписки.
func (s *Storage) SetBillingCustomerID(ctx context.Context, subID int, customerID string) error {
	const op = "storage.SetBillingCustomerID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET billing_customer_id = $1, updated_at = NOW()
			  WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, customerID, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateTierAmount обновляет тариф и сумму записи (смена тарифа без промежуточного incomplete).
func (s *Storage) UpdateTierAmount(ctx context.Context, subID int, tier string, amount int) error {
	const op = "storage.UpdateTierAmount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET tier = $1, monthly_amount = $2, updated_at = NOW()
			  WHERE id = $3`
	if _, err := s.DB.ExecContext(ctx, query, tier, amount, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetCancelAtPeriodEnd выставляет или снимает флаг отмены в конце периода.
func (s *Storage) SetCancelAtPeriodEnd(ctx context.Context, subID int, cancel bool) error {
	const op = "storage.SetCancelAtPeriodEnd"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET cancel_at_period_end = $1, updated_at = NOW()
			  WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, cancel, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkExpired помечает просроченную непожизненную запись как expired.
// Условие в WHERE делает операцию идемпотентной: повторный вызов
// не меняет ни одной строки.
func (s *Storage) MarkExpired(ctx context.Context, subID int) error {
	const op = "storage.MarkExpired"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = 'expired', updated_at = NOW()
			  WHERE id = $1
			    AND is_lifetime = false
			    AND current_period_end IS NOT NULL
			    AND current_period_end < NOW()
			    AND status <> 'expired'`
	if _, err := s.DB.ExecContext(ctx, query, subID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HasLifetimeSubscription сообщает, есть ли у пользователя пожизненная подписка.
func (s *Storage) HasLifetimeSubscription(ctx context.Context, userUID string) (bool, error) {
	const op = "storage.HasLifetimeSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1 FROM subscriptions
			      WHERE user_uid = $1 AND is_lifetime = true AND status = 'active')`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// HasBilledActiveSubscription сообщает, есть ли у пользователя действующая
// подписка, оплачиваемая через провайдера. Запись с прошедшим окончанием
// периода не считается: ленивая фиксация могла её ещё не пометить.
func (s *Storage) HasBilledActiveSubscription(ctx context.Context, userUID string) (bool, error) {
	const op = "storage.HasBilledActiveSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1 FROM subscriptions
			      WHERE user_uid = $1
			        AND status = 'active'
			        AND billing_subscription_id IS NOT NULL
			        AND (is_lifetime = true
			             OR current_period_end IS NULL
			             OR current_period_end >= NOW()))`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// ApplyBillingUpdate применяет событие провайдера к локальной записи внутри
// сериализуемой транзакции: читает запись под блокировкой, решает новый статус
// через models.ApplyBillingEvent и пишет результат. Запись ищется сначала по
// billing-идентификатору подписки, затем по идентификатору покупателя.
// Если записи нет и задан createUserUID, создаётся новая со статусом события.
//
// Возвращает итоговую запись и признак того, что событие было применено.
func (s *Storage) ApplyBillingUpdate(ctx context.Context, upd models.BillingUpdate, createUserUID string) (*models.Subscription, bool, error) {
	const op = "storage.ApplyBillingUpdate"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	sub, err := lockSubscriptionForUpdate(ctx, tx, upd)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if sub == nil {
		if createUserUID == "" {
			return nil, false, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		created, err := insertFromBillingUpdate(ctx, tx, upd, createUserUID)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		return created, true, nil
	}

	incoming := upd.Status
	if upd.ForceActive {
		incoming = models.StatusActive
	}
	storedSubID := ""
	if sub.BillingSubscriptionID != nil {
		storedSubID = *sub.BillingSubscriptionID
	}
	newStatus, applied := models.ApplyBillingEvent(sub.Status, storedSubID, incoming, upd.BillingSubscriptionID)
	if !applied {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		return sub, false, nil
	}

	sub.Status = newStatus
	if storedSubID == "" && upd.BillingSubscriptionID != "" {
		sub.BillingSubscriptionID = &upd.BillingSubscriptionID
	}
	if sub.BillingCustomerID == nil && upd.BillingCustomerID != "" {
		sub.BillingCustomerID = &upd.BillingCustomerID
	}
	if upd.Tier != nil {
		sub.Tier = upd.Tier
	}
	if upd.MonthlyAmount > 0 {
		sub.MonthlyAmount = upd.MonthlyAmount
	}
	if upd.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = upd.CurrentPeriodEnd
	}
	sub.CancelAtPeriodEnd = upd.CancelAtPeriodEnd

	query := `UPDATE subscriptions
			  SET billing_customer_id = $1, billing_subscription_id = $2, status = $3,
			      tier = $4, monthly_amount = $5, current_period_end = $6,
			      cancel_at_period_end = $7, updated_at = NOW()
			  WHERE id = $8`
	if _, err := tx.ExecContext(ctx, query,
		sub.BillingCustomerID, sub.BillingSubscriptionID, string(sub.Status),
		sub.Tier, sub.MonthlyAmount, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.ID); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return sub, true, nil
}

func lockSubscriptionForUpdate(ctx context.Context, tx *sql.Tx, upd models.BillingUpdate) (*models.Subscription, error) {
	if upd.BillingSubscriptionID != "" {
		query := `SELECT ` + subscriptionColumns + `
				  FROM subscriptions
				  WHERE billing_subscription_id = $1
				  FOR UPDATE`
		sub, err := scanSubscription(tx.QueryRowContext(ctx, query, upd.BillingSubscriptionID))
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	if upd.BillingCustomerID == "" {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE billing_customer_id = $1
			  ORDER BY created_at DESC
			  LIMIT 1
			  FOR UPDATE`
	return scanSubscription(tx.QueryRowContext(ctx, query, upd.BillingCustomerID))
}

func insertFromBillingUpdate(ctx context.Context, tx *sql.Tx, upd models.BillingUpdate, userUID string) (*models.Subscription, error) {
	status := upd.Status
	if upd.ForceActive {
		status = models.StatusActive
	}
	if !models.ValidStatus(status) {
		status = models.StatusIncomplete
	}
	query := `INSERT INTO subscriptions (user_uid, billing_customer_id, billing_subscription_id,
			      status, tier, monthly_amount, current_period_end, cancel_at_period_end)
			  VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8)
			  RETURNING ` + subscriptionColumns
	return scanSubscription(tx.QueryRowContext(ctx, query,
		userUID, upd.BillingCustomerID, upd.BillingSubscriptionID,
		string(status), upd.Tier, upd.MonthlyAmount, upd.CurrentPeriodEnd, upd.CancelAtPeriodEnd))
}
