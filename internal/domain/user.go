package domain

import "time"

type User struct {
	ID         string
	TelegramID int64 // 0 when the user only reaches the bot through the API
	Name       string
	CreatedAt  time.Time
}
