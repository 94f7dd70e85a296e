package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/craftgate/internal/models"
)

// RegisterUserWithInvite расходует одно использование кода приглашения и
// создаёт пользователя в одной транзакции. Охраняемый UPDATE делает списание
// атомарным: два конкурирующих вызова не израсходуют последнее использование
// дважды. Если код неактивен, истёк или израсходован, возвращает ErrCodeExhausted.
func (s *Storage) RegisterUserWithInvite(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUserWithInvite"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE invite_codes
		SET uses = uses + 1
		WHERE code = $1
		  AND active = true
		  AND uses < max_uses
		  AND (expires_at IS NULL OR expires_at > NOW())`, user.InviteCode)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrCodeExhausted)
	}

	var newID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, username, password_hash, role, invite_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING uid`,
		user.Email, user.Username, user.PasswordHash, user.Role, user.InviteCode).Scan(&newID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetUserByUsername возвращает пользователя по его username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, username, password_hash, role, COALESCE(invite_code, ''), created_at
			  FROM users
			  WHERE username = $1`
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, username)
	if err := row.Scan(&u.UUID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.InviteCode, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, username, password_hash, role, COALESCE(invite_code, ''), created_at
			  FROM users
			  WHERE uid = $1`
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, userUID)
	if err := row.Scan(&u.UUID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.InviteCode, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// ListPlayers возвращает пользователей вместе с текущей подпиской
// и привязанным Minecraft-аккаунтом для админ-панели.
func (s *Storage) ListPlayers(ctx context.Context, limit, offset int) ([]*models.PlayerInfo, error) {
	const op = "storage.ListPlayers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.uid, u.username, u.email, u.role,
				  m.mc_username, m.nickname,
				  sub.tier, sub.status, sub.is_lifetime
			  FROM users u
			  LEFT JOIN minecraft_accounts m ON m.user_uid = u.uid
			  LEFT JOIN LATERAL (
				  SELECT tier, status, is_lifetime
				  FROM subscriptions
				  WHERE user_uid = u.uid
				  ORDER BY CASE status
					  WHEN 'active' THEN 0
					  WHEN 'incomplete' THEN 1
					  ELSE 2 END,
					  created_at DESC
				  LIMIT 1
			  ) sub ON true
			  ORDER BY u.created_at
			  LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.PlayerInfo
	for rows.Next() {
		var p models.PlayerInfo
		if err := rows.Scan(&p.UUID, &p.Username, &p.Email, &p.Role,
			&p.MCUsername, &p.Nickname, &p.Tier, &p.Status, &p.IsLifetime); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
