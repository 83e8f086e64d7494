package tokenstore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory — хранилище токенов в памяти процесса.
// Записи вытесняются по LRU и истекают через ttl. Токены теряются при рестарте.
type Memory struct {
	lru *expirable.LRU[string, string]
}

// NewMemory создаёт хранилище на size записей с временем жизни ttl.
func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Load возвращает токен сессии или ErrNotFound.
func (m *Memory) Load(_ context.Context, sessionID string) (string, error) {
	token, ok := m.lru.Get(sessionID)
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

// Save сохраняет токен (перезаписывает существующий, TTL отсчитывается заново).
func (m *Memory) Save(_ context.Context, sessionID, token string) error {
	m.lru.Add(sessionID, token)
	return nil
}

// Delete удаляет токен сессии.
func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.lru.Remove(sessionID)
	return nil
}

// Len возвращает количество хранимых токенов.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// CheckReady — хранилище в памяти всегда готово.
func (m *Memory) CheckReady() (status string, message string) {
	return "ok", "хранилище в памяти"
}
