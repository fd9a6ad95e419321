package fix

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	filestore "github.com/quickfixgo/quickfix/store/file"
	"github.com/quickfixgo/tag"

	"kalshigw/internal/config"
	"kalshigw/pkg/crypto"
)

// SessionState - состояние FIX сессии.
// Отправка прикладных сообщений разрешена только в StateLoggedOn.
type SessionState int32

const (
	StateCreated SessionState = iota
	StateConnecting
	StateConnected
	StateLogonSent
	StateLoggedOn
	StateLoggedOut
	StateDisconnected
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLogonSent:
		return "logon_sent"
	case StateLoggedOn:
		return "logged_on"
	case StateLoggedOut:
		return "logged_out"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MessageListener получает входящие прикладные сообщения и reject-уведомления.
// Методы вызываются из потока входящих сообщений движка и не должны блокировать.
type MessageListener interface {
	OnMessage(msg *quickfix.Message, sessionID quickfix.SessionID)
	OnSessionReject(refSeqNum int, refMsgType string, reason int, text string)
	OnBusinessReject(refSeqNum int, reason int, text string)
}

// StateListener уведомляется о каждой смене состояния сессии.
// Паника в listener'е гасится и логируется, никогда не распространяется.
type StateListener func(old, new SessionState)

// SessionManager владеет единственной FIX сессией к бирже:
// инициатор, TLS, heartbeat, переподключение и сигнал готовности логона.
// Движок сам переподключается после разрыва через ReconnectInterval;
// зависшие на разрыве запросы добирает трекер по таймауту.
type SessionManager struct {
	cfg    config.FIXConfig
	signer *crypto.Signer // подпись логона; nil - без подписи

	mu        sync.Mutex
	initiator *quickfix.Initiator
	sessionID quickfix.SessionID
	started   bool
	stopping  bool

	state          atomic.Int32
	msgListeners   []MessageListener
	stateListeners []StateListener

	logonCh   chan struct{}
	logonOnce sync.Once
}

// NewSessionManager создаёт менеджер сессии. Сокеты не открываются до Start.
func NewSessionManager(cfg config.FIXConfig, signer *crypto.Signer) *SessionManager {
	sm := &SessionManager{
		cfg:     cfg,
		signer:  signer,
		logonCh: make(chan struct{}),
	}
	sm.state.Store(int32(StateCreated))
	return sm
}

// AddMessageListener регистрирует получателя входящих сообщений.
// Должен вызываться до Start.
func (sm *SessionManager) AddMessageListener(l MessageListener) {
	sm.mu.Lock()
	sm.msgListeners = append(sm.msgListeners, l)
	sm.mu.Unlock()
}

// AddStateListener регистрирует слушателя смены состояния
func (sm *SessionManager) AddStateListener(l StateListener) {
	sm.mu.Lock()
	sm.stateListeners = append(sm.stateListeners, l)
	sm.mu.Unlock()
}

// Start собирает конфигурацию движка, создаёт инициатор и запускает его.
// С этого момента движок автономно подключается и логинится.
//
// Блокировка не держится через вызовы движка: NewInitiator и Stop
// синхронно дергают callbacks (OnCreate, OnLogout), которые сами
// берут sm.mu.
func (sm *SessionManager) Start() error {
	sm.mu.Lock()
	if sm.started {
		sm.mu.Unlock()
		return fmt.Errorf("fix session already started")
	}
	sm.mu.Unlock()

	settings, err := quickfix.ParseSettings(bytes.NewReader([]byte(sm.engineSettings())))
	if err != nil {
		return fmt.Errorf("parse fix settings: %w", err)
	}

	storeFactory := filestore.NewStoreFactory(settings)
	logFactory, err := quickfix.NewFileLogFactory(settings)
	if err != nil {
		return fmt.Errorf("create fix log factory: %w", err)
	}

	initiator, err := quickfix.NewInitiator(sm, storeFactory, settings, logFactory)
	if err != nil {
		return fmt.Errorf("create fix initiator: %w", err)
	}

	sm.setState(StateConnecting)
	if err := initiator.Start(); err != nil {
		sm.setState(StateError)
		return fmt.Errorf("start fix initiator: %w", err)
	}

	sm.mu.Lock()
	sm.initiator = initiator
	sm.started = true
	sm.mu.Unlock()

	if sm.cfg.ResetOnLogon {
		// Эксплуатационный риск: после переподключения с reset биржа
		// может переиспользовать присвоенные OrderID, а карты корреляции
		// живут весь процесс
		log.Printf("FIX session: resetOnLogon=true, exchange order ids may be reused after a session bounce")
	}

	log.Printf("FIX engine started, connecting to %s:%d", sm.cfg.Host, sm.cfg.Port)
	return nil
}

// AwaitLogon блокирует до завершения логона, но не дольше timeout.
// true - сессия залогинена в пределах таймаута.
func (sm *SessionManager) AwaitLogon(timeout time.Duration) bool {
	select {
	case <-sm.logonCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stop останавливает движок и сбрасывает сессию. Идемпотентен.
func (sm *SessionManager) Stop() {
	sm.mu.Lock()
	initiator := sm.initiator
	sm.initiator = nil
	sm.started = false
	sm.stopping = true
	sm.mu.Unlock()

	if initiator == nil {
		return
	}
	initiator.Stop()
	log.Printf("FIX session manager stopped")
}

// IsLoggedOn наблюдает последнее закэшированное состояние:
// после возврата logon callback любой поток видит true
func (sm *SessionManager) IsLoggedOn() bool {
	return SessionState(sm.state.Load()) == StateLoggedOn
}

// State возвращает текущее состояние сессии
func (sm *SessionManager) State() SessionState {
	return SessionState(sm.state.Load())
}

// Send отправляет прикладное сообщение через сессию.
// Ошибка означает, что сообщение не ушло и не уйдёт.
func (sm *SessionManager) Send(msg *quickfix.Message) error {
	sm.mu.Lock()
	sessionID := sm.sessionID
	started := sm.started
	sm.mu.Unlock()

	if !started {
		return fmt.Errorf("fix session not started")
	}
	return quickfix.SendToTarget(msg, sessionID)
}

func (sm *SessionManager) setState(next SessionState) {
	prev := SessionState(sm.state.Swap(int32(next)))
	sessionStateGauge.Set(float64(next))
	if prev == next {
		return
	}
	log.Printf("FIX session state: %s -> %s", prev, next)

	sm.mu.Lock()
	listeners := sm.stateListeners
	sm.mu.Unlock()
	for _, l := range listeners {
		sm.notifyState(l, prev, next)
	}
}

func (sm *SessionManager) notifyState(l StateListener, prev, next SessionState) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("State listener panic: %v", r)
		}
	}()
	l(prev, next)
}

// engineSettings собирает конфигурацию движка в формате quickfix.
// Sequence numbers хранятся в scratch-каталоге для recovery после рестарта.
// Data dictionary не подключается: кастомные теги биржи (до 21009)
// должны проходить без валидации словарём.
func (sm *SessionManager) engineSettings() string {
	storePath := sm.cfg.StorePath
	if storePath == "" {
		storePath = filepath.Join(os.TempDir(), "kalshi-fix")
	}

	var b strings.Builder
	b.WriteString("[DEFAULT]\n")
	fmt.Fprintf(&b, "SocketConnectHost=%s\n", sm.cfg.Host)
	fmt.Fprintf(&b, "SocketConnectPort=%d\n", sm.cfg.Port)
	fmt.Fprintf(&b, "HeartBtInt=%d\n", sm.cfg.HeartbeatInterval)
	fmt.Fprintf(&b, "ReconnectInterval=%d\n", sm.cfg.ReconnectInterval)
	fmt.Fprintf(&b, "ResetOnLogon=%s\n", fixBool(sm.cfg.ResetOnLogon))
	// Биржа не принимает plain TCP
	fmt.Fprintf(&b, "SocketUseSSL=%s\n", fixBool(sm.cfg.SSLEnabled))
	fmt.Fprintf(&b, "FileStorePath=%s\n", storePath)
	fmt.Fprintf(&b, "FileLogPath=%s\n", filepath.Join(storePath, "log"))
	b.WriteString("[SESSION]\n")
	fmt.Fprintf(&b, "BeginString=%s\n", sm.cfg.BeginString)
	// FIXT.1.1 с прикладным уровнем FIX 5.0 SP2
	b.WriteString("DefaultApplVerID=9\n")
	fmt.Fprintf(&b, "SenderCompID=%s\n", sm.cfg.SenderCompID)
	fmt.Fprintf(&b, "TargetCompID=%s\n", sm.cfg.TargetCompID)
	return b.String()
}

func fixBool(v bool) string {
	if v {
		return "Y"
	}
	return "N"
}

// ============================================================
// quickfix.Application
// ============================================================

// OnCreate вызывается движком при создании сессии
func (sm *SessionManager) OnCreate(sessionID quickfix.SessionID) {
	sm.mu.Lock()
	sm.sessionID = sessionID
	sm.mu.Unlock()
	log.Printf("FIX session created: %s", sessionID)
}

// OnLogon переводит сессию в logged_on и освобождает ожидающих AwaitLogon
func (sm *SessionManager) OnLogon(sessionID quickfix.SessionID) {
	sm.setState(StateLoggedOn)
	sm.logonOnce.Do(func() { close(sm.logonCh) })
	log.Printf("FIX session logged on: %s", sessionID)
}

// OnLogout вызывается и при штатном logout, и при разрыве соединения.
// Движок сам переподключится; pending запросы не дренируются здесь -
// их добирает уборка трекера по таймауту.
func (sm *SessionManager) OnLogout(sessionID quickfix.SessionID) {
	sm.mu.Lock()
	stopping := sm.stopping
	sm.mu.Unlock()

	if stopping {
		sm.setState(StateLoggedOut)
	} else {
		sm.setState(StateDisconnected)
	}
	log.Printf("FIX session logged out: %s", sessionID)
}

// ToAdmin подписывает исходящий Logon: биржа требует RawData с
// RSA-PSS подписью полей заголовка
func (sm *SessionManager) ToAdmin(msg *quickfix.Message, _ quickfix.SessionID) {
	msgType, err := msg.Header.GetString(tag.MsgType)
	if err != nil || enum.MsgType(msgType) != enum.MsgType_LOGON {
		return
	}
	sm.setState(StateLogonSent)

	if sm.signer == nil {
		return
	}

	sendingTime, _ := msg.Header.GetString(tag.SendingTime)
	seqNum, _ := msg.Header.GetString(tag.MsgSeqNum)
	sender, _ := msg.Header.GetString(tag.SenderCompID)
	target, _ := msg.Header.GetString(tag.TargetCompID)

	payload := strings.Join([]string{sendingTime, msgType, seqNum, sender, target}, "\x01")
	signature, signErr := sm.signer.Sign(payload)
	if signErr != nil {
		log.Printf("Failed to sign FIX logon: %v", signErr)
		return
	}
	msg.Body.SetField(tag.RawData, quickfix.FIXString(signature))
	msg.Body.SetField(tag.RawDataLength, quickfix.FIXInt(len(signature)))
}

// FromAdmin разбирает сессионный Reject (MsgType 3) и уведомляет слушателей
func (sm *SessionManager) FromAdmin(msg *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {
	msgType, err := msg.Header.GetString(tag.MsgType)
	if err != nil || enum.MsgType(msgType) != enum.MsgType_REJECT {
		return nil
	}

	refSeqNum, _ := msg.Body.GetInt(tag.RefSeqNum)
	refMsgType, _ := msg.Body.GetString(tag.RefMsgType)
	reason, _ := msg.Body.GetInt(tag.SessionRejectReason)
	text, _ := msg.Body.GetString(tag.Text)

	sm.mu.Lock()
	listeners := sm.msgListeners
	sm.mu.Unlock()
	for _, l := range listeners {
		sm.dispatch(func() { l.OnSessionReject(refSeqNum, refMsgType, reason, text) })
	}
	return nil
}

// ToApp учитывает исходящие прикладные сообщения в метриках
func (sm *SessionManager) ToApp(msg *quickfix.Message, _ quickfix.SessionID) error {
	if msgType, err := msg.Header.GetString(tag.MsgType); err == nil {
		messagesSentTotal.WithLabelValues(msgType).Inc()
	}
	return nil
}

// FromApp раздаёт входящие прикладные сообщения слушателям в порядке
// регистрации. BusinessMessageReject (MsgType j) идёт отдельным путём.
func (sm *SessionManager) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	msgType, err := msg.Header.GetString(tag.MsgType)
	if err != nil {
		return nil
	}

	sm.mu.Lock()
	listeners := sm.msgListeners
	sm.mu.Unlock()

	if enum.MsgType(msgType) == enum.MsgType_BUSINESS_MESSAGE_REJECT {
		refSeqNum, _ := msg.Body.GetInt(tag.RefSeqNum)
		reason, _ := msg.Body.GetInt(tag.BusinessRejectReason)
		text, _ := msg.Body.GetString(tag.Text)
		for _, l := range listeners {
			sm.dispatch(func() { l.OnBusinessReject(refSeqNum, reason, text) })
		}
		return nil
	}

	for _, l := range listeners {
		sm.dispatch(func() { l.OnMessage(msg, sessionID) })
	}
	return nil
}

// dispatch вызывает callback слушателя, гася панику
func (sm *SessionManager) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Message listener panic: %v", r)
		}
	}()
	fn()
}
