package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cbout22/squaresync/internal/remote"
)

// UserAgent is sent on every request made by clients from NewHTTPClient.
const UserAgent = "sqsync"

// loginPath is relative to the service base URL.
const loginPath = "/Api/User/ajaxLogin"

// HashPassword returns the lowercase hex MD5 of password, which is what the
// login endpoint expects in place of the clear-text password.
func HashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login exchanges the user's e-mail and password for a session.
func Login(ctx context.Context, client *http.Client, baseURL, email, password string) (remote.Session, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", HashPassword(password))

	endpoint := strings.TrimRight(baseURL, "/") + loginPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return remote.Session{}, fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return remote.Session{}, &remote.Error{Op: "login", Kind: remote.Network, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return remote.Session{}, &remote.Error{
			Op:   "login",
			Kind: remote.Network,
			Err:  fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	session, err := remote.DecodeMessage[remote.Session]("login", resp.Body)
	if err != nil {
		return remote.Session{}, fmt.Errorf("login failed, please check your username & password: %w", err)
	}
	if session.Token == "" || session.UID == "" {
		return remote.Session{}, errors.New("login failed, please check your username & password: no session returned")
	}
	return session, nil
}

// NewHTTPClient returns an *http.Client for the course service.
// A zero timeout leaves requests unbounded so large downloads are never cut off.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &agentTransport{
			agent: UserAgent,
			base:  http.DefaultTransport,
		},
	}
}

// agentTransport is a custom http.RoundTripper that sets the User-Agent header.
type agentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid mutating the original
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "application/json")
	}
	return t.base.RoundTrip(r)
}
