// Package session owns the single realtime WebSocket connection of a
// signed-in user: it dials and re-dials the server, translates user actions
// into outbound intents, folds inbound events into the shared chat state, and
// lets the presentation layer subscribe to changes. All state is held by the
// Session and handed out as copies; callers never mutate it directly.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/campuslink/campuslink/internal/models"
)

// State of the realtime connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Event identifies which slice of session state changed. Listeners re-read
// through the snapshot accessors; events carry no payload.
type Event int

const (
	EventState Event = iota
	EventChats
	EventMessages
	EventNotifications
)

// defaultRetryDelay is the pause between a dropped connection and the next
// dial attempt. Retries continue at this interval until Close.
const defaultRetryDelay = 3 * time.Second

var (
	ErrClosed       = errors.New("session: closed")
	ErrNotConnected = errors.New("session: not connected")
	ErrEmptyMessage = errors.New("session: empty message")
	ErrSelfMessage  = errors.New("session: cannot message yourself")
)

// Session is the realtime session manager. One instance per signed-in user;
// a closed instance is never reused.
type Session struct {
	url    string
	userID int
	log    *zap.Logger
	dialer *websocket.Dialer

	// retryDelay is fixed after Connect; tests shorten it beforehand.
	retryDelay time.Duration

	wmu sync.Mutex // serializes writes to the socket

	mu            sync.Mutex
	state         State
	conn          *websocket.Conn
	gen           int         // connection generation; stale read loops bail out
	retryTimer    *time.Timer // pending reconnect, only while reconnecting
	closed        bool
	chats         []models.Chat
	messages      []models.Message // history of the open chat only
	openChat      int              // counterpart id of the open chat, 0 when none
	notifications []models.Notification
	listeners     map[int]func(Event)
	nextListener  int
}

// New builds a session for the given WebSocket URL and local user. Connect
// must be called before any intent is sent.
func New(url string, userID int, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		url:        url,
		userID:     userID,
		log:        log,
		dialer:     websocket.DefaultDialer,
		retryDelay: defaultRetryDelay,
		state:      StateConnecting,
		listeners:  make(map[int]func(Event)),
	}
}

// SetRetryDelay overrides the reconnect delay. Call before Connect.
func (s *Session) SetRetryDelay(d time.Duration) {
	s.mu.Lock()
	s.retryDelay = d
	s.mu.Unlock()
}

// UserID returns the local user this session is bound to.
func (s *Session) UserID() int { return s.userID }

// Connect performs the first dial. It returns the dial error, if any, but a
// failed first dial still arms the retry timer: the session keeps trying in
// the background until Close.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.notify(EventState)
	return s.connect()
}

// connect dials once. On success it announces presence and starts the read
// loop; on failure it schedules the next attempt.
func (s *Session) connect() error {
	conn, resp, err := s.dialer.Dial(s.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		s.log.Warn("websocket dial failed", zap.String("url", s.url), zap.Error(err))
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		s.notify(EventState)
		return errors.Wrap(err, "session: dial")
	}
	s.conn = conn
	s.gen++
	gen := s.gen
	s.state = StateOpen
	s.mu.Unlock()
	s.notify(EventState)

	s.log.Info("websocket connected", zap.Int("userId", s.userID))

	// Presence intent, once per successful open.
	if err := s.write(userOnlineFrame{Type: TypeUserOnline, UserID: s.userID}); err != nil {
		s.log.Warn("presence announce failed", zap.Error(err))
	}

	go s.readLoop(conn, gen)
	return nil
}

// readLoop drains inbound frames until the connection drops, then hands off
// to the reconnect schedule. A loop from a superseded connection exits
// without touching state.
func (s *Session) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			s.mu.Lock()
			if s.closed || gen != s.gen {
				s.mu.Unlock()
				return
			}
			s.conn = nil
			s.log.Info("websocket disconnected", zap.Error(err))
			s.scheduleReconnectLocked()
			s.mu.Unlock()
			s.notify(EventState)
			return
		}
		s.handleFrame(data)
	}
}

// scheduleReconnectLocked arms the retry timer. Callers hold s.mu.
func (s *Session) scheduleReconnectLocked() {
	s.state = StateReconnecting
	s.retryTimer = time.AfterFunc(s.retryDelay, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.retryTimer = nil
		s.state = StateConnecting
		s.mu.Unlock()
		s.notify(EventState)
		s.connect()
	})
}

// Close tears the connection down for good. No further reconnects are
// scheduled; a fresh Session must be created to go online again.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.notify(EventState)
}

// handleFrame dispatches one inbound frame. Malformed and unknown frames are
// logged and dropped; nothing here tears the connection down.
func (s *Session) handleFrame(data []byte) {
	frame, frameType, err := decodeFrame(data)
	if err != nil {
		s.log.Warn("dropping malformed frame", zap.String("type", frameType), zap.Error(err))
		return
	}

	switch f := frame.(type) {
	case *newMessageFrame:
		s.handleNewMessage(f.Message)
	case *chatHistoryFrame:
		s.handleChatHistory(f.Messages)
	case *userStatusFrame:
		s.handleUserStatus(f.UserID, f.IsOnline)
	case *notificationsFrame:
		s.handleNotifications(f.Notifications)
	case *connectionSuccessFrame:
		// Informational acknowledgement only.
		s.log.Debug("connection confirmed", zap.Int("userId", f.UserID))
	default:
		s.log.Debug("ignoring unknown frame", zap.String("type", frameType))
	}
}

func (s *Session) handleNewMessage(m models.Message) {
	s.mu.Lock()
	appended := false
	if s.openChat != 0 && counterpartID(m, s.userID) == s.openChat {
		s.messages = append(s.messages, m)
		appended = true
	}
	s.chats = reconcile(s.chats, m, s.userID)
	s.mu.Unlock()

	if appended {
		s.notify(EventMessages)
	}
	s.notify(EventChats)
}

func (s *Session) handleChatHistory(msgs []models.Message) {
	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	s.notify(EventMessages)
}

func (s *Session) handleUserStatus(userID int, online bool) {
	s.mu.Lock()
	changed := false
	for i := range s.chats {
		if s.chats[i].User.ID == userID {
			s.chats[i].User.IsOnline = online
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify(EventChats)
	}
}

func (s *Session) handleNotifications(ns []models.Notification) {
	s.mu.Lock()
	s.notifications = ns
	s.mu.Unlock()
	s.notify(EventNotifications)
}

// write marshals one frame onto the socket. Fire-and-forget: no
// acknowledgement is awaited.
func (s *Session) write(frame any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		return errors.Wrap(err, "session: write frame")
	}
	return nil
}

// SendMessage validates and sends a chat message to the given counterpart,
// applying it optimistically to local state without waiting for the server.
// Whitespace-only content and self-sends are rejected before anything goes
// out on the wire.
func (s *Session) SendMessage(receiverID int, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	if receiverID == s.userID {
		return ErrSelfMessage
	}

	if err := s.write(sendMessageFrame{
		Type:       TypeSendMessage,
		SenderID:   s.userID,
		ReceiverID: receiverID,
		Content:    content,
	}); err != nil {
		return err
	}

	m := models.Message{
		Content:    content,
		CreatedAt:  time.Now(),
		SenderID:   s.userID,
		ReceiverID: receiverID,
	}
	s.mu.Lock()
	appended := false
	if s.openChat == receiverID {
		s.messages = append(s.messages, m)
		appended = true
	}
	s.chats = reconcile(s.chats, m, s.userID)
	s.mu.Unlock()

	if appended {
		s.notify(EventMessages)
	}
	s.notify(EventChats)
	return nil
}

// OpenChat selects a counterpart: previous history is discarded, the unread
// counter is zeroed optimistically, and the server is asked to mark messages
// read and replay the pair's history. The server stays authoritative for the
// true unread state on the next full fetch.
func (s *Session) OpenChat(counterpart int) error {
	s.mu.Lock()
	s.openChat = counterpart
	s.messages = nil
	for i := range s.chats {
		if s.chats[i].User.ID == counterpart && s.chats[i].LastMessage != nil {
			s.chats[i].LastMessage.UnreadCount = 0
		}
	}
	s.mu.Unlock()
	s.notify(EventChats)
	s.notify(EventMessages)

	if err := s.write(markMessagesReadFrame{
		Type:     TypeMarkMessagesRead,
		UserID:   s.userID,
		SenderID: counterpart,
	}); err != nil {
		return err
	}
	return s.write(fetchChatHistoryFrame{
		Type:    TypeFetchChatHistory,
		UserID:  s.userID,
		OtherID: counterpart,
	})
}

// CloseChat deselects the open chat and drops its in-memory history.
func (s *Session) CloseChat() {
	s.mu.Lock()
	s.openChat = 0
	s.messages = nil
	s.mu.Unlock()
	s.notify(EventMessages)
}

// RequestNotifications asks the server for the current unread-by-sender
// aggregates; the reply arrives as a notifications-update event.
func (s *Session) RequestNotifications() error {
	return s.write(getNotificationsFrame{Type: TypeGetNotifications, UserID: s.userID})
}

// SetChats replaces the chat list wholesale, typically after the REST fetch
// of the user's chats at startup.
func (s *Session) SetChats(chats []models.Chat) {
	s.mu.Lock()
	s.chats = append([]models.Chat(nil), chats...)
	sortChats(s.chats)
	s.mu.Unlock()
	s.notify(EventChats)
}

// Subscribe registers a listener invoked after session state changes. The
// returned function removes it. Listeners must not block; they read fresh
// state through the snapshot accessors.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify fans an event out to the current listeners, outside the state lock.
func (s *Session) notify(e Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Chats returns a copy of the chat list, newest activity first. Summaries
// are cloned so callers cannot reach back into session state.
func (s *Session) Chats() []models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Chat, len(s.chats))
	copy(out, s.chats)
	for i := range out {
		if out[i].LastMessage != nil {
			lm := *out[i].LastMessage
			out[i].LastMessage = &lm
		}
	}
	return out
}

// Messages returns a copy of the open chat's message history.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Notifications returns a copy of the unread aggregates.
func (s *Session) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}
