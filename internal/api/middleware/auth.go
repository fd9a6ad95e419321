package middleware

import (
	"net/http"

	"kalshigw/pkg/crypto"
)

// BasicAuth защищает мутирующие endpoints (создание/отмена ордеров)
// HTTP Basic аутентификацией. Пароль сверяется с bcrypt хешем из
// конфигурации; пустой хеш запрещает доступ целиком.
func BasicAuth(passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passwordHash == "" {
				http.Error(w, "Mutating endpoints disabled. Set API_PASSWORD_HASH.", http.StatusForbidden)
				return
			}

			_, password, ok := r.BasicAuth()
			if !ok || crypto.VerifyPassword(password, passwordHash) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="kalshigw"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
