package domain

// PasswordHasher скрывает конкретный алгоритм хеширования паролей.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare возвращает ErrUnauthorized при несовпадении.
	Compare(hash, password string) error
}

// OutboxRepository — хранилище событий, ожидающих публикации.
// Сообщения отдаются в порядке записи; статус меняется только через MarkSent/MarkFailed.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPublisher доставляет событие во внешний брокер. Повторная доставка
// того же id допустима: потребители дедуплицируют по OutboxMessage.ID.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}
