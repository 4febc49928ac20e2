package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campuslink/campuslink/internal/models"
)

// chatServer is a minimal WebSocket endpoint for driving a Session: it
// records every inbound frame and can push frames or drop connections.
type chatServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn

	frames chan map[string]any
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	cs := &chatServer{frames: make(chan map[string]any, 32)}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := cs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cs.mu.Lock()
		cs.conns = append(cs.conns, conn)
		cs.mu.Unlock()
		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			cs.frames <- frame
		}
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *chatServer) url() string {
	return "ws" + strings.TrimPrefix(cs.srv.URL, "http")
}

func (cs *chatServer) connCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.conns)
}

// push sends a frame over the most recent connection.
func (cs *chatServer) push(t *testing.T, frame any) {
	t.Helper()
	cs.mu.Lock()
	conn := cs.conns[len(cs.conns)-1]
	cs.mu.Unlock()
	data, _ := json.Marshal(frame)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("push failed: %v", err)
	}
}

// drop closes the most recent connection from the server side.
func (cs *chatServer) drop() {
	cs.mu.Lock()
	conn := cs.conns[len(cs.conns)-1]
	cs.mu.Unlock()
	conn.Close()
}

// expectFrame waits for the next inbound frame of the given type.
func (cs *chatServer) expectFrame(t *testing.T, frameType string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-cs.frames:
			if f["type"] == frameType {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", frameType)
			return nil
		}
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestSession(t *testing.T, cs *chatServer, userID int) *Session {
	t.Helper()
	s := New(cs.url(), userID, nil)
	s.SetRetryDelay(50 * time.Millisecond)
	t.Cleanup(s.Close)
	return s
}

func TestConnectAnnouncesPresence(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)

	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := s.State(); got != StateOpen {
		t.Errorf("state after connect = %v, want open", got)
	}

	frame := cs.expectFrame(t, TypeUserOnline)
	if frame["userId"] != float64(10) {
		t.Errorf("user-online carried userId %v, want 10", frame["userId"])
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	cs.drop()
	waitFor(t, func() bool {
		st := s.State()
		return st == StateReconnecting || st == StateConnecting || (st == StateOpen && cs.connCount() > 1)
	}, "reconnecting state")

	// A new connection appears without any caller action, and presence is
	// re-announced.
	waitFor(t, func() bool { return cs.connCount() == 2 }, "second connection")
	cs.expectFrame(t, TypeUserOnline)
	waitFor(t, func() bool { return s.State() == StateOpen }, "reopened state")
}

func TestCloseStopsReconnecting(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	s.Close()
	if got := s.State(); got != StateClosed {
		t.Fatalf("state after close = %v, want closed", got)
	}

	// Well past the retry delay, no new connection may appear.
	time.Sleep(200 * time.Millisecond)
	if cs.connCount() != 1 {
		t.Errorf("dismissed session reconnected: %d connections", cs.connCount())
	}
	if err := s.Connect(); err != ErrClosed {
		t.Errorf("Connect on closed session = %v, want ErrClosed", err)
	}
}

func TestInboundNewMessage(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	cs.push(t, map[string]any{
		"type": TypeNewMessage,
		"message": models.Message{
			Content:    "hello",
			CreatedAt:  time.Now(),
			SenderID:   42,
			ReceiverID: 10,
			Sender:     &models.ChatUser{ID: 42, FirstName: "Priya"},
		},
	})

	waitFor(t, func() bool { return len(s.Chats()) == 1 }, "chat list update")
	c := s.Chats()[0]
	if c.User.ID != 42 || c.LastMessage == nil || c.LastMessage.UnreadCount != 1 {
		t.Errorf("unexpected chat after inbound message: %+v", c)
	}
	// No chat was open, so no message was appended.
	if len(s.Messages()) != 0 {
		t.Errorf("message list should stay empty, got %d entries", len(s.Messages()))
	}
}

func TestOpenChatFetchesHistory(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	if err := s.OpenChat(42); err != nil {
		t.Fatalf("open chat: %v", err)
	}
	mark := cs.expectFrame(t, TypeMarkMessagesRead)
	if mark["senderId"] != float64(42) {
		t.Errorf("mark-messages-read senderId = %v", mark["senderId"])
	}
	fetch := cs.expectFrame(t, TypeFetchChatHistory)
	if fetch["otherId"] != float64(42) {
		t.Errorf("fetch-chat-history otherId = %v", fetch["otherId"])
	}

	cs.push(t, map[string]any{
		"type": TypeChatHistory,
		"messages": []models.Message{
			{Content: "a", SenderID: 42, ReceiverID: 10},
			{Content: "b", SenderID: 10, ReceiverID: 42},
		},
	})
	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "history replacement")

	// A follow-up inbound message for the open chat lands in the list.
	cs.push(t, map[string]any{
		"type": TypeNewMessage,
		"message": models.Message{
			Content: "c", CreatedAt: time.Now(), SenderID: 42, ReceiverID: 10,
		},
	})
	waitFor(t, func() bool { return len(s.Messages()) == 3 }, "append to open chat")
}

func TestOpenChatResetsUnread(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	s.SetChats([]models.Chat{{
		ID:          1,
		User:        models.ChatUser{ID: 42},
		LastMessage: &models.LastMessage{Content: "x", CreatedAt: time.Now(), UnreadCount: 3},
	}})
	if err := s.OpenChat(42); err != nil {
		t.Fatalf("open chat: %v", err)
	}
	if got := s.Chats()[0].LastMessage.UnreadCount; got != 0 {
		t.Errorf("unread count after open = %d, want 0", got)
	}
}

func TestSendMessageValidation(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	if err := s.SendMessage(42, "   \t  "); err != ErrEmptyMessage {
		t.Errorf("whitespace content: got %v, want ErrEmptyMessage", err)
	}
	if err := s.SendMessage(10, "hi me"); err != ErrSelfMessage {
		t.Errorf("self send: got %v, want ErrSelfMessage", err)
	}

	// Neither rejection produced an outbound frame or local state.
	time.Sleep(100 * time.Millisecond)
	select {
	case f := <-cs.frames:
		t.Errorf("unexpected outbound frame %v", f)
	default:
	}
	if len(s.Chats()) != 0 {
		t.Errorf("rejected send mutated the chat list")
	}
}

func TestSendMessageOptimistic(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	if err := s.OpenChat(42); err != nil {
		t.Fatalf("open chat: %v", err)
	}
	cs.expectFrame(t, TypeMarkMessagesRead)
	cs.expectFrame(t, TypeFetchChatHistory)

	if err := s.SendMessage(42, "  are you going to the hackathon?  "); err != nil {
		t.Fatalf("send: %v", err)
	}

	frame := cs.expectFrame(t, TypeSendMessage)
	if frame["content"] != "are you going to the hackathon?" {
		t.Errorf("content not trimmed on the wire: %q", frame["content"])
	}
	if frame["senderId"] != float64(10) || frame["receiverId"] != float64(42) {
		t.Errorf("wrong attribution: %v", frame)
	}

	// Optimistic local effects, independent of any server echo.
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "are you going to the hackathon?" {
		t.Errorf("message not appended optimistically: %v", msgs)
	}
	chats := s.Chats()
	if len(chats) != 1 || chats[0].LastMessage.UnreadCount != 0 {
		t.Errorf("own send must not create unread: %+v", chats)
	}
}

func TestUserStatusChanged(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	s.SetChats([]models.Chat{{ID: 1, User: models.ChatUser{ID: 42}}})
	cs.push(t, map[string]any{"type": TypeUserStatusChanged, "userId": 42, "isOnline": true})
	waitFor(t, func() bool { return s.Chats()[0].User.IsOnline }, "online flag")

	// Status for a user without a chat is a no-op.
	cs.push(t, map[string]any{"type": TypeUserStatusChanged, "userId": 77, "isOnline": true})
	time.Sleep(50 * time.Millisecond)
	if len(s.Chats()) != 1 {
		t.Errorf("status event created a chat")
	}
}

func TestNotificationsUpdate(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	if err := s.RequestNotifications(); err != nil {
		t.Fatalf("request notifications: %v", err)
	}
	cs.expectFrame(t, TypeGetNotifications)

	cs.push(t, map[string]any{
		"type": TypeNotificationsUpdate,
		"notifications": []models.Notification{
			{SenderID: 42, Count: 3, FirstName: "Priya"},
		},
	})
	waitFor(t, func() bool { return len(s.Notifications()) == 1 }, "notifications update")
	if n := s.Notifications()[0]; n.SenderID != 42 || n.Count != 3 {
		t.Errorf("unexpected aggregate %+v", n)
	}
}

func TestMalformedAndUnknownFramesIgnored(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)

	cs.push(t, map[string]any{"type": "typing-indicator", "userId": 42})
	cs.mu.Lock()
	conn := cs.conns[len(cs.conns)-1]
	cs.mu.Unlock()
	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))

	// The connection survives both; a later well-formed frame still lands.
	cs.push(t, map[string]any{
		"type": TypeNewMessage,
		"message": models.Message{
			Content: "still here", CreatedAt: time.Now(), SenderID: 42, ReceiverID: 10,
		},
	})
	waitFor(t, func() bool { return len(s.Chats()) == 1 }, "frame after garbage")
	if s.State() != StateOpen {
		t.Errorf("state = %v, want open", s.State())
	}
}

func TestSubscribe(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)

	var mu sync.Mutex
	seen := map[Event]int{}
	unsub := s.Subscribe(func(e Event) {
		mu.Lock()
		seen[e]++
		mu.Unlock()
	})

	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.expectFrame(t, TypeUserOnline)
	cs.push(t, map[string]any{
		"type": TypeNewMessage,
		"message": models.Message{
			Content: "ping", CreatedAt: time.Now(), SenderID: 42, ReceiverID: 10,
		},
	})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[EventState] > 0 && seen[EventChats] > 0
	}, "state and chat events")

	unsub()
	mu.Lock()
	before := seen[EventChats]
	mu.Unlock()
	cs.push(t, map[string]any{
		"type": TypeNewMessage,
		"message": models.Message{
			Content: "pong", CreatedAt: time.Now(), SenderID: 42, ReceiverID: 10,
		},
	})
	waitFor(t, func() bool { return len(s.Chats()) > 0 && s.Chats()[0].LastMessage.Content == "pong" }, "second message")
	mu.Lock()
	after := seen[EventChats]
	mu.Unlock()
	if after != before {
		t.Errorf("listener fired after unsubscribe")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	cs := newChatServer(t)
	s := newTestSession(t, cs, 10)
	// Never connected.
	if err := s.SendMessage(42, "hello"); err != ErrNotConnected {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}
