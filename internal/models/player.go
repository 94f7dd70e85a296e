package models

// PlayerInfo строка админ-списка игроков: пользователь вместе с текущей
// подпиской и привязанным Minecraft-аккаунтом (поля nil, если данных нет).
type PlayerInfo struct {
	UUID       string  `json:"uid"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	MCUsername *string `json:"mc_username"`
	Nickname   *string `json:"nickname"`
	Tier       *string `json:"tier"`
	Status     *string `json:"status"`
	IsLifetime *bool   `json:"is_lifetime"`
}
