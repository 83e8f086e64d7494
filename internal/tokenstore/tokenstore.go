// Пакет tokenstore — долговременное хранение bearer-токенов браузерных сессий.
// Ключ — идентификатор браузерной сессии из cookie, значение — токен API.
// Бэкенды: память (expirable LRU), PostgreSQL, Redis.
package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound — токен для сессии не найден или истёк.
var ErrNotFound = errors.New("токен сессии не найден")

// Store — хранилище токенов.
// Delete идемпотентен: удаление отсутствующей записи не является ошибкой.
type Store interface {
	Load(ctx context.Context, sessionID string) (string, error)
	Save(ctx context.Context, sessionID, token string) error
	Delete(ctx context.Context, sessionID string) error
	CheckReady() (status string, message string)
}
