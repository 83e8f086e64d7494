// Пакет guard — защита маршрутов страниц по аутентификации и роли.
//
// Решение вычисляется заново на каждом запросе из текущего снимка сессии
// и не кэшируется. Отказ означает redirect до вызова защищённого
// обработчика: ни один байт защищённой страницы не отправляется.
// Маршрут, с которого пришёл пользователь, не запоминается.
package guard

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/rmsb/condo-portal/internal/api/errors"
	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/domain/rbac"
	uimiddleware "github.com/rmsb/condo-portal/internal/ui/middleware"
)

// Маршруты перенаправления при отказе.
const (
	LoginRoute        = "/login"
	UnauthorizedRoute = "/unauthorized"
)

// decisionsTotal — решения guard по состоянию.
var decisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cp_route_guard_decisions_total",
		Help: "Количество решений защиты маршрутов по состоянию",
	},
	[]string{"state"},
)

// State — результат проверки доступа.
type State int

const (
	// StateUnauthenticated — нет подтверждённого пользователя.
	StateUnauthenticated State = iota
	// StateUnauthorized — роль пользователя не совпадает с требуемой.
	StateUnauthorized
	// StateAuthorized — доступ разрешён.
	StateAuthorized
)

// String возвращает имя состояния (используется как лейбл метрики).
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateUnauthorized:
		return "unauthorized"
	default:
		return "authorized"
	}
}

// Requirement — требование маршрута.
// Role == nil — достаточно любого аутентифицированного пользователя.
type Requirement struct {
	Public bool
	Role   *model.UserType
}

// Public — маршрут без аутентификации.
func Public() Requirement {
	return Requirement{Public: true}
}

// Authenticated — любой аутентифицированный пользователь.
func Authenticated() Requirement {
	return Requirement{}
}

// Role — пользователь с ролью t (точное совпадение).
func Role(t model.UserType) Requirement {
	return Requirement{Role: &t}
}

// Decision — решение по запросу.
type Decision struct {
	State State
	// Redirect — куда направить пользователя ("" при StateAuthorized).
	Redirect string
}

// Evaluate — чистая функция проверки доступа.
func Evaluate(user *model.User, req Requirement) Decision {
	if req.Public {
		return Decision{State: StateAuthorized}
	}
	if user == nil {
		return Decision{State: StateUnauthenticated, Redirect: LoginRoute}
	}
	if req.Role != nil && !rbac.HasRole(user, *req.Role) {
		return Decision{State: StateUnauthorized, Redirect: UnauthorizedRoute}
	}
	return Decision{State: StateAuthorized}
}

// Guard — middleware защиты маршрутов.
type Guard struct {
	logger *slog.Logger
}

// New создаёт Guard.
func New(logger *slog.Logger) *Guard {
	return &Guard{logger: logger.With(slog.String("component", "route_guard"))}
}

// Require возвращает middleware, пропускающий запрос только при StateAuthorized.
// Запросы /api/* при отказе получают 401/403 с заголовком HX-Redirect
// вместо 302.
func (g *Guard) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user *model.User
			if store := uimiddleware.StoreFromContext(r.Context()); store != nil {
				user = store.Snapshot().User
			}

			decision := Evaluate(user, req)
			decisionsTotal.WithLabelValues(decision.State.String()).Inc()

			if decision.State == StateAuthorized {
				next.ServeHTTP(w, r)
				return
			}

			g.logger.Debug("Доступ к маршруту запрещён",
				slog.String("path", r.URL.Path),
				slog.String("state", decision.State.String()),
				slog.String("redirect", decision.Redirect),
			)

			if strings.HasPrefix(r.URL.Path, "/api/") {
				w.Header().Set("HX-Redirect", decision.Redirect)
				if decision.State == StateUnauthorized {
					apierrors.Forbidden(w, "недостаточно прав")
				} else {
					apierrors.Unauthorized(w, "требуется вход")
				}
				return
			}
			http.Redirect(w, r, decision.Redirect, http.StatusFound)
		})
	}
}

// Route — защищённый маршрут и его требование.
// Pattern с суффиксом "/*" покрывает все вложенные пути.
type Route struct {
	Pattern     string
	Requirement Requirement
}

// Routes — таблица маршрутов страниц.
var Routes = []Route{
	{"/", Public()},
	{"/about", Public()},
	{"/login", Public()},
	{"/register", Public()},
	{"/unauthorized", Public()},
	{"/logout", Public()},
	{"/set-language", Public()},

	{"/dashboard", Authenticated()},
	{"/profile", Authenticated()},
	{"/announcements", Authenticated()},
	{"/complaints", Authenticated()},
	{"/parking", Authenticated()},
	{"/utilities", Authenticated()},
	{"/services", Authenticated()},
	{"/ekub-eddir", Authenticated()},
	{"/api/*", Authenticated()},

	{"/admin-dashboard", Role(model.UserTypeAdmin)},
	{"/admin/*", Role(model.UserTypeAdmin)},

	{"/super-admin-dashboard", Role(model.UserTypeSuperAdmin)},
	{"/super-admin/*", Role(model.UserTypeSuperAdmin)},
}

// RequirementFor возвращает требование для пути.
// false — путь не описан в таблице маршрутов.
func RequirementFor(path string) (Requirement, bool) {
	for _, route := range Routes {
		if matches(route.Pattern, path) {
			return route.Requirement, true
		}
	}
	return Requirement{}, false
}

// matches сопоставляет путь с шаблоном маршрута.
func matches(pattern, path string) bool {
	if base, ok := strings.CutSuffix(pattern, "/*"); ok {
		return path == base || strings.HasPrefix(path, base+"/")
	}
	return path == pattern
}
