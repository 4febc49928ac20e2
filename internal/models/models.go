package models

import "time"

// Student is a directory/profile entry. JSON field names follow the wire
// format the backend uses (camelCase).
type Student struct {
	ID          int      `json:"id"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Username    string   `json:"username,omitempty"`
	Email       string   `json:"email,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Branch      string   `json:"branch,omitempty"`
	Year        string   `json:"year,omitempty"`
	State       string   `json:"state,omitempty"`
	Skills      []string `json:"skills"`
	Interests   []string `json:"interests"`
	Languages   []string `json:"language,omitempty"`
	ProfilePic  string   `json:"profilePic,omitempty"`
	LinkedinURL string   `json:"linkedinUrl,omitempty"`
	GithubURL   string   `json:"githubUrl,omitempty"`
}

// ChatUser is the counterpart of a chat as shown in the chat list.
type ChatUser struct {
	ID         int    `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	ProfilePic string `json:"profilePic,omitempty"`
	IsOnline   bool   `json:"isOnline"`
	LastSeen   string `json:"lastSeen,omitempty"`
}

// LastMessage summarizes the newest message of a chat for list rendering.
type LastMessage struct {
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	UnreadCount int       `json:"unreadCount"`
}

// Chat is one conversation thread with exactly one counterpart; a chat list
// holds at most one Chat per counterpart id. The id is server-assigned for
// confirmed chats and locally generated for provisional ones.
type Chat struct {
	ID          int64        `json:"id"`
	User        ChatUser     `json:"user"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
}

// Message is a single chat message between two students.
type Message struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
	SenderID   int        `json:"senderId"`
	ReceiverID int        `json:"receiverId"`
	IsRead     bool       `json:"isRead"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	Sender     *ChatUser  `json:"sender,omitempty"`
}

// Notification is the unread aggregate for one sender, backing the bell
// indicator.
type Notification struct {
	SenderID   int    `json:"senderId"`
	Count      int    `json:"count"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Post is a feed entry.
type Post struct {
	ID        int64     `json:"id"`
	StudentID int       `json:"studentId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Author    *Student  `json:"author,omitempty"`
}

// SuggestionCandidate is one "people you may know" entry, derived per
// computation and never persisted.
type SuggestionCandidate struct {
	Student    Student
	MatchCount int
	CommonTags []string
}
