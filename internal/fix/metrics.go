package fix

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики FIX шлюза
// ============================================================
//
// Мониторинг ордерного пути:
// - латентность запрос -> ExecutionReport
// - счётчики исходящих сообщений и входящих отчётов
// - состояние сессии и число pending запросов, собранных уборкой

// messagesSentTotal - исходящие прикладные сообщения по типам (D/F/G)
var messagesSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kalshigw",
		Subsystem: "fix",
		Name:      "messages_sent_total",
		Help:      "Outbound FIX application messages by MsgType",
	},
	[]string{"msg_type"},
)

// executionReportsTotal - входящие ExecutionReport по ExecType
var executionReportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kalshigw",
		Subsystem: "fix",
		Name:      "execution_reports_total",
		Help:      "Inbound ExecutionReports by ExecType",
	},
	[]string{"exec_type"},
)

// cancelRejectsTotal - входящие OrderCancelReject
var cancelRejectsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "kalshigw",
		Subsystem: "fix",
		Name:      "cancel_rejects_total",
		Help:      "Inbound OrderCancelReject messages",
	},
)

// orderRoundTripLatency - время от отправки до завершения обещания.
// Buckets подобраны под сетевой round-trip к бирже (5ms - 5s).
var orderRoundTripLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "kalshigw",
		Subsystem: "fix",
		Name:      "order_round_trip_ms",
		Help:      "Latency from message send to ExecutionReport correlation in milliseconds",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	},
	[]string{"op"},
)

// stalePendingTotal - запросы, собранные уборкой по таймауту
var stalePendingTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "kalshigw",
		Subsystem: "fix",
		Name:      "stale_pending_total",
		Help:      "Pending requests reaped by the stale cleanup sweep",
	},
)

// sessionStateGauge - текущее состояние FIX сессии (значение enum)
var sessionStateGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "kalshigw",
		Subsystem: "fix",
		Name:      "session_state",
		Help:      "Current FIX session state (0=created .. 7=error)",
	},
)
