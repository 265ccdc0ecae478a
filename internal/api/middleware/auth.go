package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"sniper/pkg/crypto"
)

// APITokenAuth - middleware для защиты read-only API endpoints
//
// Назначение:
// Проверяет заголовок X-API-Key против токена из переменной окружения
// API_AUTH_TOKEN. Если токен не настроен, аутентификация отключена
// (локальное развертывание, один пользователь).
//
// Безопасность:
// - Использует constant-time сравнение для предотвращения timing attacks
func APITokenAuth(next http.Handler) http.Handler {
	token := os.Getenv("API_AUTH_TOKEN")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		provided := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminAuth - middleware для защиты управляющих endpoints
//
// Назначение:
// Защищает endpoints, которые меняют состояние бота (panic close,
// сброс circuit breaker), через HTTP Basic Authentication.
// Пароль хранится в виде bcrypt-хеша в переменной окружения
// ADMIN_PASSWORD_HASH (генерируется через pkg/crypto.HashPassword).
//
// Конфигурация:
// - ADMIN_USERNAME: имя пользователя (по умолчанию "admin")
// - ADMIN_PASSWORD_HASH: bcrypt хеш пароля
// - Если хеш не установлен, управляющие endpoints доступны без auth
//   (локальное развертывание)
//
// Использование:
//
//	control := router.PathPrefix("/api/v1/risk").Subrouter()
//	control.Use(middleware.AdminAuth)
func AdminAuth(next http.Handler) http.Handler {
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	passwordHash := os.Getenv("ADMIN_PASSWORD_HASH")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if passwordHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Control endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passMatch := crypto.CheckPasswordMatch(pass, passwordHash)

		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Control endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DebugAuth - middleware для защиты debug/pprof endpoints
//
// Конфигурация:
// - DEBUG_USERNAME: имя пользователя для доступа к debug endpoints
// - DEBUG_PASSWORD: пароль для доступа к debug endpoints
// - Если переменные не установлены, доступ запрещен вне development
//
// Безопасность:
// - Использует constant-time сравнение для предотвращения timing attacks
func DebugAuth(next http.Handler) http.Handler {
	debugUsername := os.Getenv("DEBUG_USERNAME")
	debugPassword := os.Getenv("DEBUG_PASSWORD")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if debugUsername == "" || debugPassword == "" {
			if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD.", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(debugPassword)) == 1

		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
