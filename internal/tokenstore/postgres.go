package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// tokensPurgedTotal — количество удалённых просроченных токенов.
var tokensPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cp_token_store_purged_total",
	Help: "Количество просроченных токенов, удалённых из PostgreSQL",
})

// Postgres — хранилище токенов в таблице session_tokens.
// Просроченные записи не возвращаются Load и периодически удаляются
// фоновой горутиной (Start/Stop).
type Postgres struct {
	pool          *pgxpool.Pool
	ttl           time.Duration
	purgeInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPostgres создаёт хранилище поверх пула подключений.
func NewPostgres(pool *pgxpool.Pool, ttl, purgeInterval time.Duration, logger *slog.Logger) *Postgres {
	return &Postgres{
		pool:          pool,
		ttl:           ttl,
		purgeInterval: purgeInterval,
		logger:        logger.With(slog.String("component", "token_store")),
	}
}

// Load возвращает непросроченный токен сессии или ErrNotFound.
func (p *Postgres) Load(ctx context.Context, sessionID string) (string, error) {
	var token string
	err := p.pool.QueryRow(ctx,
		`SELECT token FROM session_tokens
		 WHERE session_id = $1 AND expires_at > NOW()`,
		sessionID,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ошибка чтения токена сессии: %w", err)
	}
	return token, nil
}

// Save создаёт или перезаписывает токен сессии.
func (p *Postgres) Save(ctx context.Context, sessionID, token string) error {
	expiresAt := time.Now().UTC().Add(p.ttl)
	_, err := p.pool.Exec(ctx,
		`INSERT INTO session_tokens (session_id, token, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE
		 SET token = EXCLUDED.token, created_at = NOW(), expires_at = EXCLUDED.expires_at`,
		sessionID, token, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения токена сессии: %w", err)
	}
	return nil
}

// Delete удаляет токен сессии.
func (p *Postgres) Delete(ctx context.Context, sessionID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM session_tokens WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("ошибка удаления токена сессии: %w", err)
	}
	return nil
}

// PurgeExpired удаляет просроченные токены и возвращает их количество.
func (p *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM session_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки просроченных токенов: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Start запускает периодическую очистку просроченных токенов.
func (p *Postgres) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil || p.purgeInterval <= 0 {
		return
	}

	purgeCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.run(purgeCtx)

	p.logger.Info("Очистка просроченных токенов запущена",
		slog.String("interval", p.purgeInterval.String()),
	)
}

// Stop останавливает фоновую очистку.
func (p *Postgres) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.logger.Info("Очистка просроченных токенов остановлена")
}

// run — цикл фоновой очистки.
func (p *Postgres) run(ctx context.Context) {
	ticker := time.NewTicker(p.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("Не удалось очистить просроченные токены",
						slog.String("error", err.Error()),
					)
				}
				continue
			}
			tokensPurgedTotal.Add(float64(n))
			if n > 0 {
				p.logger.Debug("Просроченные токены удалены", slog.Int64("count", n))
			}
		}
	}
}

// CheckReady проверяет подключение к PostgreSQL.
func (p *Postgres) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
