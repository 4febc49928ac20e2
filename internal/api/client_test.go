package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/campuslink/campuslink/internal/models"
)

func TestSigninAndBearerToken(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/signin", func(w http.ResponseWriter, req *http.Request) {
		var creds map[string]string
		json.NewDecoder(req.Body).Decode(&creds)
		if creds["email"] != "aditya@campus.edu" || creds["password"] != "secret" {
			http.Error(w, `{"message":"Invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-123",
			"user":  models.Student{ID: 7, FirstName: "Aditya"},
		})
	}).Methods("POST")
	r.HandleFunc("/getAllStudents", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer tok-123" {
			http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"students": []models.Student{{ID: 7, FirstName: "Aditya"}, {ID: 8, FirstName: "Priya"}},
		})
	}).Methods("GET")
	srv := httptest.NewServer(r)
	defer srv.Close()

	token := ""
	c := NewClient(srv.URL, func() string { return token }, nil)

	resp, err := c.Signin("aditya@campus.edu", "secret")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if resp.Token != "tok-123" || resp.Student.ID != 7 {
		t.Fatalf("unexpected signin response: %+v", resp)
	}
	token = resp.Token

	students, err := c.GetAllStudents()
	if err != nil {
		t.Fatalf("get students: %v", err)
	}
	if len(students) != 2 {
		t.Errorf("expected 2 students, got %d", len(students))
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/getAllPosts", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
	}).Methods("GET")
	srv := httptest.NewServer(r)
	defer srv.Close()

	cleared := false
	c := NewClient(srv.URL, func() string { return "stale" }, func() { cleared = true })

	_, err := c.GetAllPosts()
	if err != ErrUnauthorized {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if !cleared {
		t.Error("unauthorized hook was not invoked")
	}
}

func TestServerErrorMessageSurfaced(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/signup", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, `{"message":"Email already registered"}`, http.StatusConflict)
	}).Methods("POST")
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	err := c.Signup(SignupRequest{Email: "dup@campus.edu"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "api: POST /signup: Email already registered" {
		t.Errorf("unexpected error text %q", got)
	}
}

func TestGetUserChats(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/chats/user/{id}", func(w http.ResponseWriter, req *http.Request) {
		if mux.Vars(req)["id"] != "7" {
			http.NotFound(w, req)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"chats": []models.Chat{{ID: 1, User: models.ChatUser{ID: 42, FirstName: "Priya"}}},
		})
	}).Methods("GET")
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	chats, err := c.GetUserChats(7)
	if err != nil {
		t.Fatalf("get chats: %v", err)
	}
	if len(chats) != 1 || chats[0].User.ID != 42 {
		t.Errorf("unexpected chats: %+v", chats)
	}
}

func TestVerifyResetOtp(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/verify-reset-otp", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"resetToken": "reset-abc"})
	}).Methods("POST")
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	tok, err := c.VerifyResetOtp("a@campus.edu", "123456")
	if err != nil {
		t.Fatalf("verify reset otp: %v", err)
	}
	if tok != "reset-abc" {
		t.Errorf("reset token = %q", tok)
	}
}
