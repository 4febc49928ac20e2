// Package api is the REST client for the CampusLink backend. Authentication
// uses a bearer token supplied by a callback so the credential store stays
// the single owner of the token.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/campuslink/campuslink/internal/models"
)

// ErrUnauthorized is returned when the server rejects the bearer token. The
// configured unauthorized hook has already run by the time callers see it.
var ErrUnauthorized = errors.New("api: unauthorized")

const requestTimeout = 15 * time.Second

// Client talks to the CampusLink REST API.
type Client struct {
	baseURL        string
	http           *http.Client
	token          func() string // current bearer token, "" when signed out
	onUnauthorized func()        // e.g. clear the local credential store
}

// NewClient builds a client for the given base URL. token may be nil for a
// purely anonymous client; onUnauthorized may be nil.
func NewClient(baseURL string, token func() string, onUnauthorized func()) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{Timeout: requestTimeout},
		token:          token,
		onUnauthorized: onUnauthorized,
	}
}

type serverError struct {
	Message string `json:"message"`
}

// do runs one JSON request/response round trip. A 401 triggers the
// unauthorized hook and maps to ErrUnauthorized; other non-2xx statuses
// surface the server's message when it sent one.
func (c *Client) do(method, path string, body any, out any) error {
	var req *http.Request
	var err error
	if body != nil {
		buf, merr := json.Marshal(body)
		if merr != nil {
			return errors.Wrap(merr, "api: encode request")
		}
		req, err = http.NewRequest(method, c.baseURL+path, bytes.NewReader(buf))
	} else {
		req, err = http.NewRequest(method, c.baseURL+path, nil)
	}
	if err != nil {
		return errors.Wrap(err, "api: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "api: %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var se serverError
		if json.NewDecoder(resp.Body).Decode(&se) == nil && se.Message != "" {
			return errors.Errorf("api: %s %s: %s", method, path, se.Message)
		}
		return errors.Errorf("api: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "api: decode %s response", path)
		}
	}
	return nil
}

// SignupRequest starts account creation; the server mails an OTP to confirm.
type SignupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	Gender    string `json:"gender"`
}

func (c *Client) Signup(req SignupRequest) error {
	return c.do(http.MethodPost, "/signup", req, nil)
}

func (c *Client) VerifyOtp(email, otp string) error {
	return c.do(http.MethodPost, "/verifyOtpController", map[string]string{"email": email, "otp": otp}, nil)
}

func (c *Client) ResendOtp(email string) error {
	return c.do(http.MethodPost, "/resendOtp", map[string]string{"email": email}, nil)
}

// SigninResponse carries the bearer token and the signed-in profile, both of
// which the caller is expected to persist locally.
type SigninResponse struct {
	Token   string         `json:"token"`
	Student models.Student `json:"user"`
}

func (c *Client) Signin(email, password string) (*SigninResponse, error) {
	var out SigninResponse
	if err := c.do(http.MethodPost, "/signin", map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ForgotPassword(email string) error {
	return c.do(http.MethodPost, "/forgot-password", map[string]string{"email": email}, nil)
}

// VerifyResetOtp exchanges the emailed OTP for a single-use reset token.
func (c *Client) VerifyResetOtp(email, otp string) (string, error) {
	var out struct {
		ResetToken string `json:"resetToken"`
	}
	if err := c.do(http.MethodPost, "/verify-reset-otp", map[string]string{"email": email, "otp": otp}, &out); err != nil {
		return "", err
	}
	return out.ResetToken, nil
}

func (c *Client) ResetPassword(email, resetToken, newPassword string) error {
	return c.do(http.MethodPost, "/reset-password", map[string]string{
		"email":       email,
		"resetToken":  resetToken,
		"newPassword": newPassword,
	}, nil)
}

// GetUserChats fetches the user's chat list summaries.
func (c *Client) GetUserChats(userID int) ([]models.Chat, error) {
	var out struct {
		Chats []models.Chat `json:"chats"`
	}
	if err := c.do(http.MethodGet, fmt.Sprintf("/chats/user/%d", userID), nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// GetAllStudents fetches the full roster, the input of the suggestion
// matcher and the directory view.
func (c *Client) GetAllStudents() ([]models.Student, error) {
	var out struct {
		Students []models.Student `json:"students"`
	}
	if err := c.do(http.MethodGet, "/getAllStudents", nil, &out); err != nil {
		return nil, err
	}
	return out.Students, nil
}

func (c *Client) GetStudentProfile(id int) (*models.Student, error) {
	var out struct {
		Student models.Student `json:"student"`
	}
	if err := c.do(http.MethodGet, fmt.Sprintf("/getStudentProfile/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Student, nil
}

func (c *Client) SetupProfile(s models.Student) error {
	return c.do(http.MethodPost, "/setUpProfile", s, nil)
}

func (c *Client) EditProfile(s models.Student) error {
	return c.do(http.MethodPut, "/editStudentProfile", s, nil)
}

func (c *Client) CreatePost(studentID int, content string) error {
	return c.do(http.MethodPost, "/createPost", map[string]any{
		"studentId": studentID,
		"content":   content,
	}, nil)
}

func (c *Client) GetAllPosts() ([]models.Post, error) {
	var out struct {
		Posts []models.Post `json:"posts"`
	}
	if err := c.do(http.MethodGet, "/getAllPosts", nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}
