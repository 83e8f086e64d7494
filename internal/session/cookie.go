package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/hkdf"
)

// CookieName — имя cookie с идентификатором браузерной сессии.
const CookieName = "condo_session"

// cookiePayload — содержимое зашифрованного cookie.
type cookiePayload struct {
	SessionID string `json:"sid"`
	IssuedAt  int64  `json:"iat"`
}

// CookieCodec шифрует идентификатор сессии в cookie через AES-256-GCM.
// Сам токен API в cookie не попадает.
type CookieCodec struct {
	gcm    cipher.AEAD
	secure bool
	maxAge time.Duration
}

// NewCookieCodec создаёт кодек cookie.
// key — base64 от 32 байт или произвольная строка (ключ выводится через HKDF-SHA256).
// Пустой key — случайный ключ, сессии не переживают рестарт.
func NewCookieCodec(key string, secure bool, maxAge time.Duration) (*CookieCodec, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			keyBytes, err = deriveKey(key)
			if err != nil {
				return nil, err
			}
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &CookieCodec{gcm: gcm, secure: secure, maxAge: maxAge}, nil
}

// Encode шифрует идентификатор сессии в base64-строку.
func (c *CookieCodec) Encode(sessionID string) (string, error) {
	plaintext, err := json.Marshal(cookiePayload{SessionID: sessionID, IssuedAt: time.Now().Unix()})
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	// nonce prepended к ciphertext
	ciphertext := c.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decode дешифрует cookie и возвращает идентификатор сессии.
func (c *CookieCodec) Decode(encoded string) (string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка дешифрования сессии: %w", err)
	}

	var payload cookiePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return "", fmt.Errorf("ошибка десериализации сессии: %w", err)
	}
	if payload.SessionID == "" {
		return "", errors.New("пустой идентификатор сессии")
	}
	if c.maxAge > 0 && time.Since(time.Unix(payload.IssuedAt, 0)) > c.maxAge {
		return "", errors.New("cookie сессии истёк")
	}
	return payload.SessionID, nil
}

// SetCookie устанавливает cookie сессии в ответ.
func (c *CookieCodec) SetCookie(w http.ResponseWriter, sessionID string) error {
	encoded, err := c.Encode(sessionID)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// FromRequest извлекает идентификатор сессии из cookie запроса.
// Нет cookie — "", nil.
func (c *CookieCodec) FromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", nil
		}
		return "", err
	}
	return c.Decode(cookie.Value)
}

// ClearCookie удаляет cookie сессии.
func (c *CookieCodec) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// cookieKeyInfo — контекст HKDF. Смена значения делает недействительными все cookie.
var cookieKeyInfo = []byte("condo-portal.session-cookie.v1")

// deriveKey выводит 32-байтный ключ AES из строкового секрета.
func deriveKey(secret string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, cookieKeyInfo)
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("ошибка вывода ключа сессии: %w", err)
	}
	return key, nil
}
