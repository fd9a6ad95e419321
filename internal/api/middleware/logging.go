package middleware

import (
	"log"
	"net/http"
	"time"
)

// slowRequestThreshold - ордерные операции блокируют до ответа биржи;
// всё, что дольше, помечается в логе для разбора
const slowRequestThreshold = 2 * time.Second

// statusWriter захватывает статус и объём ответа.
// Write без явного WriteHeader означает 200.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += int64(n)
	return n, err
}

// Logging пишет одну строку на запрос: метод, путь, статус, объём,
// длительность, адрес клиента. Медленные запросы получают отдельную
// пометку - долгий ответ ops API почти всегда значит долгий ответ биржи.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		if elapsed > slowRequestThreshold {
			log.Printf("SLOW %s %s status=%d bytes=%d dur=%s from=%s",
				r.Method, r.URL.Path, status, sw.bytes, elapsed, r.RemoteAddr)
			return
		}
		log.Printf("%s %s status=%d bytes=%d dur=%s from=%s",
			r.Method, r.URL.Path, status, sw.bytes, elapsed, r.RemoteAddr)
	})
}
