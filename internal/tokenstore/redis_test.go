package tokenstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis запускает Redis в Docker-контейнере.
func setupTestRedis(t *testing.T) string {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Не удалось получить адрес контейнера: %v", err)
	}
	return addr
}

func TestRedis_SaveLoadDelete(t *testing.T) {
	addr := setupTestRedis(t)
	ctx := context.Background()

	client, err := ConnectRedis(ctx, RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("ConnectRedis() ошибка: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedis(client, time.Hour)

	if _, err := store.Load(ctx, "sid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}
	if err := store.Save(ctx, "sid", "tok"); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}
	if got, err := store.Load(ctx, "sid"); err != nil || got != "tok" {
		t.Fatalf("Load() = %q, %v", got, err)
	}

	ttl, err := client.TTL(ctx, redisKey("sid")).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL ключа = %v", ttl)
	}

	if err := store.Delete(ctx, "sid"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := store.Load(ctx, "sid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() после Delete: %v", err)
	}
	if status, _ := store.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %q", status)
	}
}

func TestConnectRedis_Unreachable(t *testing.T) {
	_, err := ConnectRedis(context.Background(), RedisConfig{
		Addr:    "127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("ожидалась ошибка подключения")
	}
}
