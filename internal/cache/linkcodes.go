package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Коды привязки Minecraft-аккаунта живут во внешнем TTL-хранилище,
// а не в памяти процесса: перезапуск и горизонтальное масштабирование
// не должны терять незавершённые привязки.

const linkCodeTTL = 10 * time.Minute

func linkCodeKey(code string) string {
	return "linkcode:" + code
}

// PutLinkCode сохраняет код привязки для пользователя с TTL.
func (c *Cache) PutLinkCode(ctx context.Context, linkCode, userUID string) error {
	const op = "cache.PutLinkCode"
	if err := c.Db.Set(ctx, linkCodeKey(linkCode), userUID, linkCodeTTL).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TakeLinkCode возвращает uid пользователя по коду привязки и удаляет код.
// Возвращает false, если код не найден или истёк.
func (c *Cache) TakeLinkCode(ctx context.Context, linkCode string) (string, bool, error) {
	const op = "cache.TakeLinkCode"
	val, err := c.Db.GetDel(ctx, linkCodeKey(linkCode)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return val, true, nil
}
