// Package devserver is an in-memory stand-in for the CampusLink backend: it
// serves the same REST endpoints and WebSocket protocol the real server
// does, so the client can be developed and tested without it. Nothing here
// survives a restart.
package devserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuslink/campuslink/internal/models"
)

// devOtp is the fixed one-time password: there is no mail delivery here, the
// code is just logged.
const devOtp = "123456"

const tokenTTL = 24 * time.Hour

type credential struct {
	userID int
	hash   []byte
}

type pendingSignup struct {
	student models.Student
	hash    []byte
	otp     string
}

type Server struct {
	log      *zap.Logger
	secret   []byte
	hub      *hub
	upgrader websocket.Upgrader

	mu          sync.Mutex
	students    map[int]*models.Student
	credentials map[string]credential // keyed by email
	pending     map[string]pendingSignup
	resetOtps   map[string]string
	resetTokens map[string]string
	messages    []*models.Message
	posts       []models.Post
	nextUserID  int
	nextMsgID   int64
	nextPostID  int64
}

func New(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:         log,
		secret:      []byte("campuslink-dev-secret"),
		hub:         newHub(log),
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		students:    make(map[int]*models.Student),
		credentials: make(map[string]credential),
		pending:     make(map[string]pendingSignup),
		resetOtps:   make(map[string]string),
		resetTokens: make(map[string]string),
		nextUserID:  1,
		nextMsgID:   1,
		nextPostID:  1,
	}
}

// Router builds the full HTTP surface: REST under /api, the WebSocket
// endpoint at /.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/signup", s.handleSignup).Methods("POST")
	api.HandleFunc("/verifyOtpController", s.handleVerifyOtp).Methods("POST")
	api.HandleFunc("/resendOtp", s.handleResendOtp).Methods("POST")
	api.HandleFunc("/signin", s.handleSignin).Methods("POST")
	api.HandleFunc("/forgot-password", s.handleForgotPassword).Methods("POST")
	api.HandleFunc("/verify-reset-otp", s.handleVerifyResetOtp).Methods("POST")
	api.HandleFunc("/reset-password", s.handleResetPassword).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/chats/user/{id}", s.handleGetUserChats).Methods("GET")
	authed.HandleFunc("/getAllStudents", s.handleGetAllStudents).Methods("GET")
	authed.HandleFunc("/getStudentProfile/{id}", s.handleGetStudentProfile).Methods("GET")
	authed.HandleFunc("/setUpProfile", s.handleSetupProfile).Methods("POST")
	authed.HandleFunc("/editStudentProfile", s.handleEditProfile).Methods("PUT")
	authed.HandleFunc("/createPost", s.handleCreatePost).Methods("POST")
	authed.HandleFunc("/getAllPosts", s.handleGetAllPosts).Methods("GET")

	r.HandleFunc("/", s.handleWS)
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// --- auth ---

func (s *Server) mintToken(userID int) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.Itoa(userID),
		"exp": time.Now().Add(tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	})
	return tok.SignedString(s.secret)
}

// authMiddleware verifies the bearer token and stashes the user id in the
// request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.secret, nil
		})
		if err != nil || !tok.Valid {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- account handlers ---

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Username  string `json:"username"`
		Gender    string `json:"gender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	s.mu.Lock()
	_, taken := s.credentials[req.Email]
	s.mu.Unlock()
	if taken {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.mu.Lock()
	s.pending[req.Email] = pendingSignup{
		student: models.Student{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Username:  req.Username,
			Gender:    req.Gender,
		},
		hash: hash,
		otp:  devOtp,
	}
	s.mu.Unlock()

	s.log.Info("signup OTP issued", zap.String("email", req.Email), zap.String("otp", devOtp))
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

func (s *Server) handleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Otp   string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[req.Email]
	if !ok || p.otp != req.Otp {
		writeError(w, http.StatusBadRequest, "Invalid OTP")
		return
	}
	delete(s.pending, req.Email)

	student := p.student
	student.ID = s.nextUserID
	s.nextUserID++
	s.students[student.ID] = &student
	s.credentials[req.Email] = credential{userID: student.ID, hash: p.hash}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "Account verified"})
}

func (s *Server) handleResendOtp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	_, ok := s.pending[req.Email]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "No pending signup")
		return
	}
	s.log.Info("signup OTP re-issued", zap.String("email", req.Email), zap.String("otp", devOtp))
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	cred, ok := s.credentials[req.Email]
	var student models.Student
	if ok {
		student = *s.students[cred.userID]
	}
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(cred.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.mintToken(cred.userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": student})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	_, ok := s.credentials[req.Email]
	if ok {
		s.resetOtps[req.Email] = devOtp
	}
	s.mu.Unlock()
	if ok {
		s.log.Info("reset OTP issued", zap.String("email", req.Email), zap.String("otp", devOtp))
	}
	// Do not leak whether the email exists.
	writeJSON(w, http.StatusOK, map[string]string{"message": "If the account exists, an OTP was sent"})
}

func (s *Server) handleVerifyResetOtp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Otp   string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetOtps[req.Email] != req.Otp || req.Otp == "" {
		writeError(w, http.StatusBadRequest, "Invalid OTP")
		return
	}
	delete(s.resetOtps, req.Email)
	token := uuid.NewString()
	s.resetTokens[req.Email] = token
	writeJSON(w, http.StatusOK, map[string]string{"resetToken": token})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		ResetToken  string `json:"resetToken"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetTokens[req.Email] != req.ResetToken || req.ResetToken == "" {
		writeError(w, http.StatusBadRequest, "Invalid reset token")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	delete(s.resetTokens, req.Email)
	cred := s.credentials[req.Email]
	cred.hash = hash
	s.credentials[req.Email] = cred
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// --- directory / profile / feed handlers ---

func (s *Server) handleGetAllStudents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	students := make([]models.Student, 0, len(s.students))
	for _, st := range s.students {
		students = append(students, *st)
	}
	s.mu.Unlock()
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (s *Server) handleGetStudentProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	s.mu.Lock()
	st, ok := s.students[id]
	var student models.Student
	if ok {
		student = *st
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Student not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student": student})
}

func (s *Server) handleSetupProfile(w http.ResponseWriter, r *http.Request) {
	s.updateProfile(w, r)
}

func (s *Server) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	s.updateProfile(w, r)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.Student
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[req.ID]
	if !ok {
		writeError(w, http.StatusNotFound, "Student not found")
		return
	}
	// Identity fields stay server-owned.
	req.Email = st.Email
	req.Username = st.Username
	*st = req
	writeJSON(w, http.StatusOK, map[string]any{"student": *st})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID int    `json:"studentId"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Post content is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	author, ok := s.students[req.StudentID]
	if !ok {
		writeError(w, http.StatusNotFound, "Student not found")
		return
	}
	a := *author
	post := models.Post{
		ID:        s.nextPostID,
		StudentID: req.StudentID,
		Content:   req.Content,
		CreatedAt: time.Now(),
		Author:    &a,
	}
	s.nextPostID++
	s.posts = append(s.posts, post)
	writeJSON(w, http.StatusCreated, map[string]any{"post": post})
}

func (s *Server) handleGetAllPosts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	posts := make([]models.Post, len(s.posts))
	copy(posts, s.posts)
	s.mu.Unlock()
	// Newest first.
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

// --- chats over REST ---

func (s *Server) handleGetUserChats(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.Atoi(mux.Vars(r)["id"])

	s.mu.Lock()
	byCounterpart := make(map[int]*models.Chat)
	order := []int{}
	for _, m := range s.messages {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		other := m.ReceiverID
		if m.ReceiverID == userID {
			other = m.SenderID
		}
		chat, ok := byCounterpart[other]
		if !ok {
			chat = &models.Chat{ID: int64(other), User: models.ChatUser{ID: other}}
			if st, ok := s.students[other]; ok {
				chat.User.FirstName = st.FirstName
				chat.User.LastName = st.LastName
				chat.User.ProfilePic = st.ProfilePic
			}
			byCounterpart[other] = chat
			order = append(order, other)
		}
		unread := 0
		if chat.LastMessage != nil {
			unread = chat.LastMessage.UnreadCount
		}
		if m.SenderID == other && !m.IsRead {
			unread++
		}
		chat.LastMessage = &models.LastMessage{
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
			UnreadCount: unread,
		}
	}
	chats := make([]models.Chat, 0, len(order))
	for _, other := range order {
		c := *byCounterpart[other]
		c.User.IsOnline = s.hub.online(other)
		chats = append(chats, c)
	}
	s.mu.Unlock()

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].LastMessage.CreatedAt.After(chats[j].LastMessage.CreatedAt)
	})
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// --- WebSocket ---

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	c := newClient(conn)
	go c.writePump()
	s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer func() {
		userID := c.userID
		if s.hub.unregister(c) {
			s.hub.broadcast(userID, map[string]any{
				"type":     "user-status-changed",
				"userId":   userID,
				"isOnline": false,
			})
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(c, data)
	}
}

func (s *Server) handleFrame(c *client, data []byte) {
	var f struct {
		Type       string `json:"type"`
		UserID     int    `json:"userId"`
		SenderID   int    `json:"senderId"`
		ReceiverID int    `json:"receiverId"`
		OtherID    int    `json:"otherId"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn("malformed frame", zap.Error(err))
		return
	}

	switch f.Type {
	case "user-online":
		s.handleUserOnline(c, f.UserID)
	case "send-message":
		s.handleSendMessage(c, f.SenderID, f.ReceiverID, f.Content)
	case "mark-messages-read":
		s.handleMarkRead(f.UserID, f.SenderID)
	case "fetch-chat-history":
		s.handleFetchHistory(f.UserID, f.OtherID)
	case "get-notifications":
		s.hub.sendTo(f.UserID, map[string]any{
			"type":          "notifications-update",
			"notifications": s.notificationsFor(f.UserID),
		})
	default:
		s.log.Debug("ignoring frame", zap.String("type", f.Type))
	}
}

func (s *Server) handleUserOnline(c *client, userID int) {
	first := s.hub.register(c, userID)
	s.hub.sendTo(userID, map[string]any{
		"type":   "connection-success",
		"userId": userID,
	})
	if first {
		s.hub.broadcast(userID, map[string]any{
			"type":     "user-status-changed",
			"userId":   userID,
			"isOnline": true,
		})
	}
}

func (s *Server) handleSendMessage(from *client, senderID, receiverID int, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}

	s.mu.Lock()
	m := &models.Message{
		ID:         s.nextMsgID,
		Content:    content,
		CreatedAt:  time.Now(),
		SenderID:   senderID,
		ReceiverID: receiverID,
	}
	s.nextMsgID++
	if st, ok := s.students[senderID]; ok {
		m.Sender = &models.ChatUser{
			ID:         st.ID,
			FirstName:  st.FirstName,
			LastName:   st.LastName,
			ProfilePic: st.ProfilePic,
		}
	}
	s.messages = append(s.messages, m)
	msg := *m
	s.mu.Unlock()

	// The originating connection already applied the message optimistically,
	// so the event goes to the receiver and to the sender's other tabs only.
	frame := map[string]any{
		"type":    "new-message",
		"message": msg,
	}
	s.hub.sendTo(receiverID, frame)
	s.hub.sendToOthers(senderID, from, frame)
}

func (s *Server) handleMarkRead(userID, senderID int) {
	now := time.Now()
	s.mu.Lock()
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == userID && !m.IsRead {
			m.IsRead = true
			m.ReadAt = &now
		}
	}
	s.mu.Unlock()
}

func (s *Server) handleFetchHistory(userID, otherID int) {
	s.mu.Lock()
	var history []models.Message
	for _, m := range s.messages {
		if (m.SenderID == userID && m.ReceiverID == otherID) ||
			(m.SenderID == otherID && m.ReceiverID == userID) {
			history = append(history, *m)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
	s.hub.sendTo(userID, map[string]any{
		"type":     "chat-history",
		"messages": history,
	})
}

func (s *Server) notificationsFor(userID int) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[int]int)
	order := []int{}
	for _, m := range s.messages {
		if m.ReceiverID != userID || m.IsRead {
			continue
		}
		if _, ok := counts[m.SenderID]; !ok {
			order = append(order, m.SenderID)
		}
		counts[m.SenderID]++
	}
	out := make([]models.Notification, 0, len(order))
	for _, senderID := range order {
		n := models.Notification{SenderID: senderID, Count: counts[senderID]}
		if st, ok := s.students[senderID]; ok {
			n.FirstName = st.FirstName
			n.LastName = st.LastName
			n.ProfilePic = st.ProfilePic
		}
		out = append(out, n)
	}
	return out
}
