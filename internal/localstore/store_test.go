package localstore

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campuslink/campuslink/internal/models"
)

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 7,
		"exp": time.Now().Add(expiresIn).Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveAndLoadSession(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	student := models.Student{ID: 7, FirstName: "Aditya", Skills: []string{"React"}}
	token := signedToken(t, time.Hour)
	if err := store.SaveSession(token, student); err != nil {
		t.Fatalf("save: %v", err)
	}

	gotToken, gotStudent, err := store.Session()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotToken != token {
		t.Errorf("token mismatch")
	}
	if gotStudent.ID != 7 || gotStudent.FirstName != "Aditya" {
		t.Errorf("profile mismatch: %+v", gotStudent)
	}
}

func TestSaveReplacesPrevious(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	store.SaveSession(signedToken(t, time.Hour), models.Student{ID: 1})
	store.SaveSession(signedToken(t, time.Hour), models.Student{ID: 2, FirstName: "Second"})

	_, student, err := store.Session()
	if err != nil {
		t.Fatal(err)
	}
	if student.ID != 2 {
		t.Errorf("expected latest session, got student %d", student.ID)
	}
}

func TestEmptyStore(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, _, err := store.Session(); err != ErrNoSession {
		t.Errorf("got %v, want ErrNoSession", err)
	}
}

func TestClear(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	store.SaveSession(signedToken(t, time.Hour), models.Student{ID: 7})
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, _, err := store.Session(); err != ErrNoSession {
		t.Errorf("got %v after clear, want ErrNoSession", err)
	}
}

func TestExpiredTokenTreatedAsSignedOut(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	store.SaveSession(signedToken(t, -time.Minute), models.Student{ID: 7})
	if _, _, err := store.Session(); err != ErrNoSession {
		t.Errorf("got %v for expired token, want ErrNoSession", err)
	}
}

func TestOpaqueTokenAccepted(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	// Backends that hand out non-JWT tokens must still work.
	store.SaveSession("opaque-session-token", models.Student{ID: 7})
	tok, _, err := store.Session()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tok != "opaque-session-token" {
		t.Errorf("token = %q", tok)
	}
}
