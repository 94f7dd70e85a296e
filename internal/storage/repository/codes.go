package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/craftgate/internal/models"
)

// CreateInviteCode сохраняет новый код приглашения.
func (s *Storage) CreateInviteCode(ctx context.Context, code models.InviteCode) error {
	const op = "storage.CreateInviteCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO invite_codes (code, max_uses, expires_at, note, created_by)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		code.Code, code.MaxUses, code.ExpiresAt, code.Note, code.CreatedBy); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetInviteCode возвращает код приглашения по его значению.
func (s *Storage) GetInviteCode(ctx context.Context, code string) (*models.InviteCode, error) {
	const op = "storage.GetInviteCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT code, max_uses, uses, active, expires_at, note, created_by::text, created_at
			  FROM invite_codes
			  WHERE code = $1`
	ic := &models.InviteCode{}
	row := s.DB.QueryRowContext(ctx, query, code)
	if err := row.Scan(&ic.Code, &ic.MaxUses, &ic.Uses, &ic.Active,
		&ic.ExpiresAt, &ic.Note, &ic.CreatedBy, &ic.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ic, nil
}

// DeactivateInviteCode отзывает код приглашения.
func (s *Storage) DeactivateInviteCode(ctx context.Context, code string) error {
	const op = "storage.DeactivateInviteCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE invite_codes SET active = false WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ListInviteCodes возвращает все коды приглашений, новые первыми.
func (s *Storage) ListInviteCodes(ctx context.Context) ([]*models.InviteCode, error) {
	const op = "storage.ListInviteCodes"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT code, max_uses, uses, active, expires_at, note, created_by::text, created_at
			  FROM invite_codes
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.InviteCode
	for rows.Next() {
		var ic models.InviteCode
		if err := rows.Scan(&ic.Code, &ic.MaxUses, &ic.Uses, &ic.Active,
			&ic.ExpiresAt, &ic.Note, &ic.CreatedBy, &ic.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &ic)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateVoucher сохраняет новый ваучер подписки.
func (s *Storage) CreateVoucher(ctx context.Context, v models.SubscriptionVoucher) error {
	const op = "storage.CreateVoucher"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscription_vouchers (code, kind, tier, duration_days, max_uses, expires_at, note, created_by)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.DB.ExecContext(ctx, query,
		v.Code, v.Kind, v.Tier, v.DurationDays, v.MaxUses, v.ExpiresAt, v.Note, v.CreatedBy); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetVoucher возвращает ваучер по его коду.
func (s *Storage) GetVoucher(ctx context.Context, code string) (*models.SubscriptionVoucher, error) {
	const op = "storage.GetVoucher"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT code, kind, tier, duration_days, max_uses, uses, active,
				  expires_at, note, created_by::text, created_at
			  FROM subscription_vouchers
			  WHERE code = $1`
	v := &models.SubscriptionVoucher{}
	row := s.DB.QueryRowContext(ctx, query, code)
	if err := row.Scan(&v.Code, &v.Kind, &v.Tier, &v.DurationDays, &v.MaxUses,
		&v.Uses, &v.Active, &v.ExpiresAt, &v.Note, &v.CreatedBy, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// RedeemVoucher расходует одно использование ваучера и создаёт пользователю
// подписку в одной транзакции: либо списание и запись происходят вместе,
// либо не происходит ничего.
func (s *Storage) RedeemVoucher(ctx context.Context, code, userUID string) (*models.Subscription, error) {
	const op = "storage.RedeemVoucher"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var kind, tier string
	var durationDays *int
	row := tx.QueryRowContext(ctx, `
		UPDATE subscription_vouchers
		SET uses = uses + 1
		WHERE code = $1
		  AND active = true
		  AND uses < max_uses
		  AND (expires_at IS NULL OR expires_at > NOW())
		RETURNING kind, tier, duration_days`, code)
	if err := row.Scan(&kind, &tier, &durationDays); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrCodeExhausted)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	isLifetime := kind == models.VoucherKindLifetime
	var periodEnd *time.Time
	if !isLifetime {
		days := 30
		if durationDays != nil {
			days = *durationDays
		}
		t := time.Now().AddDate(0, 0, days)
		periodEnd = &t
	}

	query := `INSERT INTO subscriptions (user_uid, status, tier, monthly_amount,
			      current_period_end, is_lifetime, voucher_code)
			  VALUES ($1, 'active', $2, 0, $3, $4, $5)
			  RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(tx.QueryRowContext(ctx, query,
		userUID, tier, periodEnd, isLifetime, code))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ListVouchers возвращает все ваучеры, новые первыми.
func (s *Storage) ListVouchers(ctx context.Context) ([]*models.SubscriptionVoucher, error) {
	const op = "storage.ListVouchers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT code, kind, tier, duration_days, max_uses, uses, active,
				  expires_at, note, created_by::text, created_at
			  FROM subscription_vouchers
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.SubscriptionVoucher
	for rows.Next() {
		var v models.SubscriptionVoucher
		if err := rows.Scan(&v.Code, &v.Kind, &v.Tier, &v.DurationDays, &v.MaxUses,
			&v.Uses, &v.Active, &v.ExpiresAt, &v.Note, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
