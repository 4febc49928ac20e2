package session

import (
	"encoding/json"

	"github.com/campuslink/campuslink/internal/models"
)

// Frame type discriminators shared with the server. Every frame is a JSON
// text message of the shape {"type": ..., fields...}.
const (
	// Outbound intents.
	TypeUserOnline       = "user-online"
	TypeGetNotifications = "get-notifications"
	TypeSendMessage      = "send-message"
	TypeMarkMessagesRead = "mark-messages-read"
	TypeFetchChatHistory = "fetch-chat-history"

	// Inbound events.
	TypeNewMessage          = "new-message"
	TypeChatHistory         = "chat-history"
	TypeUserStatusChanged   = "user-status-changed"
	TypeNotificationsUpdate = "notifications-update"
	TypeConnectionSuccess   = "connection-success"
)

// Outbound frames.

type userOnlineFrame struct {
	Type   string `json:"type"`
	UserID int    `json:"userId"`
}

type getNotificationsFrame struct {
	Type   string `json:"type"`
	UserID int    `json:"userId"`
}

type sendMessageFrame struct {
	Type       string `json:"type"`
	SenderID   int    `json:"senderId"`
	ReceiverID int    `json:"receiverId"`
	Content    string `json:"content"`
}

type markMessagesReadFrame struct {
	Type     string `json:"type"`
	UserID   int    `json:"userId"`
	SenderID int    `json:"senderId"`
}

type fetchChatHistoryFrame struct {
	Type    string `json:"type"`
	UserID  int    `json:"userId"`
	OtherID int    `json:"otherId"`
}

// Inbound frames.

type newMessageFrame struct {
	Message models.Message `json:"message"`
}

type chatHistoryFrame struct {
	Messages []models.Message `json:"messages"`
}

type userStatusFrame struct {
	UserID   int  `json:"userId"`
	IsOnline bool `json:"isOnline"`
}

type notificationsFrame struct {
	Notifications []models.Notification `json:"notifications"`
}

type connectionSuccessFrame struct {
	UserID int `json:"userId"`
}

// decodeFrame parses a raw inbound frame into one of the typed variants
// above, dispatching on the type discriminator. Unknown discriminators
// return a nil frame and no error so callers can drop them silently; a parse
// failure returns the error alongside whatever type was read.
func decodeFrame(data []byte) (frame any, frameType string, err error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", err
	}

	switch env.Type {
	case TypeNewMessage:
		var f newMessageFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, env.Type, err
		}
		return &f, env.Type, nil
	case TypeChatHistory:
		var f chatHistoryFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, env.Type, err
		}
		return &f, env.Type, nil
	case TypeUserStatusChanged:
		var f userStatusFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, env.Type, err
		}
		return &f, env.Type, nil
	case TypeNotificationsUpdate:
		var f notificationsFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, env.Type, err
		}
		return &f, env.Type, nil
	case TypeConnectionSuccess:
		var f connectionSuccessFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, env.Type, err
		}
		return &f, env.Type, nil
	default:
		return nil, env.Type, nil
	}
}
