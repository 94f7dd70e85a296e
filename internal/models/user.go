package models

import "time"

// User представляет зарегистрированного участника сообщества.
type User struct {
	UUID         string    // Уникальный идентификатор пользователя
	Email        string    // Электронная почта (уникальная)
	Username     string    // Имя пользователя (уникальное)
	PasswordHash string    // Хэш пароля пользователя
	Role         string    // Роль пользователя, admin или user
	InviteCode   string    // Код приглашения, использованный при регистрации
	CreatedAt    time.Time // Дата регистрации
}

// MinecraftAccount привязанный игровой аккаунт, не более одного на пользователя.
type MinecraftAccount struct {
	ID         int
	UserUID    string
	MojangUUID string  // Игровой UUID (уникальный)
	MCUsername string  // Игровое имя
	Nickname   *string // Отображаемый ник на сервере
	CosmeticID *string // Выбранный косметический набор
	LinkedAt   time.Time
}
