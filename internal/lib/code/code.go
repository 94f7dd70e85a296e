// Package code генерирует короткие коды приглашений и ваучеров вида XXXX-XXXX.
package code

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Алфавит без визуально похожих символов (0/O, 1/I/L).
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Generate возвращает новый код из двух групп по четыре символа, например "K7PD-3MQX".
func Generate() (string, error) {
	const op = "code.Generate"
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	var sb strings.Builder
	for i, b := range buf {
		if i == 4 {
			sb.WriteByte('-')
		}
		sb.WriteByte(alphabet[int(b)%len(alphabet)])
	}
	return sb.String(), nil
}

// Normalize приводит введённый пользователем код к каноническому виду.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
