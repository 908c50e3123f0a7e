package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoTrue talks to a Supabase compatible auth server. The API key must be a
// service role key for DeleteIdentity to work.
type GoTrue struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewGoTrue(baseURL, apiKey string, timeout time.Duration) *GoTrue {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GoTrue{
		baseURL:    strings.TrimRight(baseURL, "/") + "/auth/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueError struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e gotrueError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (g *GoTrue) do(ctx context.Context, method, path, bearer string, payload any, out any) (int, string, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, "", fmt.Errorf("marshal %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return 0, "", fmt.Errorf("build %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", g.apiKey)
	if bearer == "" {
		bearer = g.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("auth %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge gotrueError
		_ = json.Unmarshal(raw, &ge)
		msg := ge.text()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, msg, nil
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, "", fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, "", nil
}

func (g *GoTrue) SignUp(ctx context.Context, email, password string) (Identity, error) {
	var out struct {
		gotrueUser
		User *gotrueUser `json:"user"`
	}
	status, msg, err := g.do(ctx, http.MethodPost, "/signup", "",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return Identity{}, err
	}
	if msg != "" {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "already registered") || strings.Contains(lower, "already exists") {
			return Identity{}, ErrEmailTaken
		}
		return Identity{}, fmt.Errorf("sign up returned %d: %s", status, msg)
	}
	u := out.gotrueUser
	if out.User != nil {
		u = *out.User
	}
	if u.ID == "" {
		return Identity{}, fmt.Errorf("sign up returned no user")
	}
	return Identity{ID: u.ID, Email: u.Email}, nil
}

func (g *GoTrue) SignIn(ctx context.Context, email, password string) (Session, error) {
	var out struct {
		AccessToken string     `json:"access_token"`
		User        gotrueUser `json:"user"`
	}
	status, msg, err := g.do(ctx, http.MethodPost, "/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return Session{}, err
	}
	if msg != "" {
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("sign in returned %d: %s", status, msg)
	}
	if out.AccessToken == "" || out.User.ID == "" {
		return Session{}, ErrInvalidCredentials
	}
	return Session{
		AccessToken: out.AccessToken,
		Identity:    Identity{ID: out.User.ID, Email: out.User.Email},
	}, nil
}

func (g *GoTrue) GetUser(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	var u gotrueUser
	status, msg, err := g.do(ctx, http.MethodGet, "/user", token, nil, &u)
	if err != nil {
		return Identity{}, err
	}
	if msg != "" {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("get user returned %d: %s", status, msg)
	}
	if u.ID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: u.ID, Email: u.Email}, nil
}

func (g *GoTrue) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	status, msg, err := g.do(ctx, http.MethodPost, "/logout", token, nil, nil)
	if err != nil {
		return err
	}
	if msg != "" {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return ErrInvalidToken
		}
		return fmt.Errorf("sign out returned %d: %s", status, msg)
	}
	return nil
}

func (g *GoTrue) DeleteIdentity(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	status, msg, err := g.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), "", nil, nil)
	if err != nil {
		return err
	}
	if msg != "" && status != http.StatusNotFound {
		return fmt.Errorf("delete identity returned %d: %s", status, msg)
	}
	return nil
}
