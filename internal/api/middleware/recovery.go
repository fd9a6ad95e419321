package middleware

import (
	"log"
	"net/http"
	"runtime/debug"
)

// Recovery перехватывает панику в handler'ах: сервер продолжает работать,
// клиент получает 500, stack trace уходит в лог
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC in %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
