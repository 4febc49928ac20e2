package session

import "testing"

func TestDecodeFrameDispatch(t *testing.T) {
	cases := []struct {
		name string
		data string
		want any
	}{
		{"new-message", `{"type":"new-message","message":{"content":"hi","senderId":1,"receiverId":2}}`, &newMessageFrame{}},
		{"chat-history", `{"type":"chat-history","messages":[]}`, &chatHistoryFrame{}},
		{"user-status-changed", `{"type":"user-status-changed","userId":3,"isOnline":true}`, &userStatusFrame{}},
		{"notifications-update", `{"type":"notifications-update","notifications":[{"senderId":1,"count":2}]}`, &notificationsFrame{}},
		{"connection-success", `{"type":"connection-success","userId":7}`, &connectionSuccessFrame{}},
	}
	for _, c := range cases {
		frame, frameType, err := decodeFrame([]byte(c.data))
		if err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
			continue
		}
		if frameType != c.name {
			t.Errorf("%s: decoded type %q", c.name, frameType)
		}
		if frame == nil {
			t.Errorf("%s: nil frame", c.name)
		}
	}
}

func TestDecodeFrameFields(t *testing.T) {
	frame, _, err := decodeFrame([]byte(`{"type":"user-status-changed","userId":3,"isOnline":true}`))
	if err != nil {
		t.Fatal(err)
	}
	f, ok := frame.(*userStatusFrame)
	if !ok {
		t.Fatalf("wrong variant %T", frame)
	}
	if f.UserID != 3 || !f.IsOnline {
		t.Errorf("fields not decoded: %+v", f)
	}
}

func TestDecodeFrameUnknownType(t *testing.T) {
	frame, frameType, err := decodeFrame([]byte(`{"type":"typing-indicator","userId":5}`))
	if err != nil {
		t.Fatalf("unknown type must not error, got %v", err)
	}
	if frame != nil {
		t.Errorf("unknown type must yield a nil frame, got %T", frame)
	}
	if frameType != "typing-indicator" {
		t.Errorf("frameType = %q", frameType)
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	if _, _, err := decodeFrame([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
	// Valid envelope, payload of the wrong shape.
	if _, _, err := decodeFrame([]byte(`{"type":"user-status-changed","userId":"nope"}`)); err == nil {
		t.Error("expected error for mistyped payload field")
	}
}
