package i18n

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"am-ET,am;q=0.9,en;q=0.8", "am"},
		{"en-US,en;q=0.9", "en"},
		{"ru-RU", "en"},
		{"", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := MatchLanguage(tt.header); got != tt.want {
				t.Errorf("MatchLanguage(%q) = %q, ожидали %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestBundle_TranslateFallback(t *testing.T) {
	b := NewBundle(nil)
	_ = b.LoadMessages("en", []byte(`{"nav.dashboard":"Dashboard","dashboard.welcome":"Welcome, %s"}`))
	_ = b.LoadMessages("am", []byte(`{"nav.dashboard":"ዳሽቦርድ"}`))

	if got := b.Translate("am", "nav.dashboard"); got != "ዳሽቦርድ" {
		t.Errorf("am = %q", got)
	}
	if got := b.Translatef("am", "dashboard.welcome", "Abebe"); got != "Welcome, Abebe" {
		t.Errorf("fallback на en = %q", got)
	}
	if got := b.Translate("en", "missing.key"); got != "missing.key" {
		t.Errorf("отсутствующий ключ = %q", got)
	}
}

// TestLocales_SameKeys проверяет, что каталоги содержат одинаковые ключи.
func TestLocales_SameKeys(t *testing.T) {
	load := func(lang string) map[string]string {
		data, err := LocaleFS.ReadFile("locales/" + lang + ".json")
		if err != nil {
			t.Fatalf("чтение каталога %s: %v", lang, err)
		}
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("парсинг каталога %s: %v", lang, err)
		}
		return m
	}

	en, am := load("en"), load("am")
	for key := range en {
		if _, ok := am[key]; !ok {
			t.Errorf("ключ %q отсутствует в am.json", key)
		}
	}
	for key := range am {
		if _, ok := en[key]; !ok {
			t.Errorf("ключ %q отсутствует в en.json", key)
		}
	}
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		accept string
		want   string
	}{
		{"cookie", "am", "en-US", "am"},
		{"неизвестный cookie", "xx", "am", "am"},
		{"заголовок", "", "am-ET", "am"},
		{"default", "", "", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = LangFromContext(r.Context())
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: LangCookieName, Value: tt.cookie})
			}
			if tt.accept != "" {
				r.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)

			if got != tt.want {
				t.Errorf("язык = %q, ожидали %q", got, tt.want)
			}
		})
	}
}

func TestLangFromContext_Default(t *testing.T) {
	if got := LangFromContext(context.Background()); got != "en" {
		t.Errorf("LangFromContext() = %q", got)
	}
}
