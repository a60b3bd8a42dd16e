package domain

import "time"

// User — зарегистрированный покупатель. Физически не удаляется.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// UserRef — публичная часть пользователя (id, name, email).
type UserRef struct {
	ID    int64
	Name  string
	Email string
}

// Ref возвращает публичное представление пользователя.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Session связывает токен с пользователем на время жизни сессии.
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired проверяет срок действия сессии на момент now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
