package session

import (
	"sort"
	"time"

	"github.com/campuslink/campuslink/internal/models"
)

// counterpartID resolves which participant of a message is not the local
// user.
func counterpartID(m models.Message, localUserID int) int {
	if m.SenderID == localUserID {
		return m.ReceiverID
	}
	return m.SenderID
}

// reconcile folds one message (inbound or an optimistic local send) into the
// chat list and returns the re-sorted list:
//
//   - no chat for the counterpart yet: a provisional chat is created, with
//     unread count 1 unless the local user sent the message;
//   - chat exists: its last-message summary is replaced, and the unread count
//     grows by one only when the counterpart sent the message. Sending never
//     bumps the sender's own unread count.
func reconcile(chats []models.Chat, m models.Message, localUserID int) []models.Chat {
	other := counterpartID(m, localUserID)

	idx := -1
	for i := range chats {
		if chats[i].User.ID == other {
			idx = i
			break
		}
	}

	if idx == -1 {
		chat := models.Chat{
			// Provisional id until the server confirms the chat.
			ID:   time.Now().UnixMilli(),
			User: models.ChatUser{ID: other},
		}
		if m.Sender != nil && m.Sender.ID == other {
			chat.User.FirstName = m.Sender.FirstName
			chat.User.LastName = m.Sender.LastName
			chat.User.ProfilePic = m.Sender.ProfilePic
		}
		unread := 1
		if m.SenderID == localUserID {
			unread = 0
		}
		chat.LastMessage = &models.LastMessage{
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
			UnreadCount: unread,
		}
		chats = append(chats, chat)
	} else {
		unread := 0
		if m.SenderID != localUserID {
			if prev := chats[idx].LastMessage; prev != nil {
				unread = prev.UnreadCount
			}
			unread++
		}
		chats[idx].LastMessage = &models.LastMessage{
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
			UnreadCount: unread,
		}
	}

	sortChats(chats)
	return chats
}

// sortChats orders the list by most recent last message first; chats without
// a summary sink to the end. The sort is stable so equal timestamps keep
// their relative order.
func sortChats(chats []models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i].LastMessage, chats[j].LastMessage
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
