package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/craftgate/internal/models"
)

// UpsertMinecraftAccount привязывает Minecraft-аккаунт к пользователю.
// Повторная привязка того же пользователя заменяет прежний аккаунт.
func (s *Storage) UpsertMinecraftAccount(ctx context.Context, acc models.MinecraftAccount) error {
	const op = "storage.UpsertMinecraftAccount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO minecraft_accounts (user_uid, mojang_uuid, mc_username)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (user_uid) DO UPDATE
			  SET mojang_uuid = EXCLUDED.mojang_uuid,
			      mc_username = EXCLUDED.mc_username,
			      linked_at = NOW()`
	if _, err := s.DB.ExecContext(ctx, query,
		acc.UserUID, acc.MojangUUID, acc.MCUsername); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetMinecraftAccount возвращает привязанный Minecraft-аккаунт пользователя.
func (s *Storage) GetMinecraftAccount(ctx context.Context, userUID string) (*models.MinecraftAccount, error) {
	const op = "storage.GetMinecraftAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, mojang_uuid, mc_username, nickname, cosmetic_id, linked_at
			  FROM minecraft_accounts
			  WHERE user_uid = $1`
	acc := &models.MinecraftAccount{}
	row := s.DB.QueryRowContext(ctx, query, userUID)
	if err := row.Scan(&acc.ID, &acc.UserUID, &acc.MojangUUID, &acc.MCUsername,
		&acc.Nickname, &acc.CosmeticID, &acc.LinkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// DeleteMinecraftAccount снимает привязку Minecraft-аккаунта.
func (s *Storage) DeleteMinecraftAccount(ctx context.Context, userUID string) error {
	const op = "storage.DeleteMinecraftAccount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM minecraft_accounts WHERE user_uid = $1`, userUID)
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

// UpdateNickname сохраняет отображаемый ник игрока.
func (s *Storage) UpdateNickname(ctx context.Context, userUID, nickname string) error {
	const op = "storage.UpdateNickname"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE minecraft_accounts SET nickname = $1 WHERE user_uid = $2`, nickname, userUID)
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
