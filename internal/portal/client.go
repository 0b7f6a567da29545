// Package portal implements the authenticated client for the remote SMS
// portal: login with the CSRF token from the login form, cookie-file
// session persistence, and raw inbox snapshot fetches. The rest of the
// system treats any portal failure as "no data this cycle".
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/otpearn/otpearn-server/internal/config"
)

const (
	loginPath = "/login"
	inboxPath = "/portal/live/my_sms"
)

// ErrNotAuthenticated means the portal answered but the response lacks the
// inbox markers, i.e. the session is invalid or expired.
var ErrNotAuthenticated = errors.New("portal session not authenticated")

// Client is the authenticated portal client. The session (cookie jar) is
// shared read-mostly state: the poller consumes it, the refresher and
// inline re-logins replace it under the mutex.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	sessions   *SessionStore
	log        *logrus.Logger

	mu sync.Mutex // serializes logins
}

// NewClient builds a portal client and restores any persisted session
func NewClient(cfg config.PortalConfig, log *logrus.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		password: cfg.Password,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.FetchTimeout,
		},
		sessions: NewSessionStore(cfg.CookiesFile),
		log:      log,
	}

	if cookies, err := c.sessions.Load(); err == nil && len(cookies) > 0 {
		c.setCookies(cookies)
		log.WithField("cookies", len(cookies)).Info("restored portal session")
	}

	return c, nil
}

// FetchInbox retrieves one raw snapshot of the inbox view. A non-200
// answer is a transient failure; a 200 without the inbox markers means the
// session is invalid and returns ErrNotAuthenticated.
func (c *Client) FetchInbox(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+inboxPath, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inbox fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inbox fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("inbox read failed: %w", err)
	}

	text := string(body)
	if !looksAuthenticated(text, resp.Request.URL.String()) {
		return "", ErrNotAuthenticated
	}

	return text, nil
}

// EnsureSession validates the current session with a capability probe and
// re-authenticates inline when it has expired.
func (c *Client) EnsureSession(ctx context.Context) error {
	_, err := c.FetchInbox(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotAuthenticated) {
		return err
	}
	return c.Login(ctx)
}

// Login performs a fresh credential login: fetch the login form, extract
// the hidden _token, post the credentials, then verify with an inbox probe
// and persist the cookies.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+loginPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login page fetch failed: %w", err)
	}
	token := extractCSRFToken(resp.Body)
	resp.Body.Close()

	form := url.Values{
		"_token":   {token},
		"email":    {c.email},
		"password": {c.password},
	}
	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	postResp, err := c.httpClient.Do(postReq)
	if err != nil {
		return fmt.Errorf("login post failed: %w", err)
	}
	io.Copy(io.Discard, postResp.Body)
	postResp.Body.Close()

	// Judge success by capability, not status: fetch the inbox and look
	// for its markers.
	if _, err := c.FetchInbox(ctx); err != nil {
		return fmt.Errorf("login verification failed: %w", err)
	}

	if err := c.sessions.Save(c.currentCookies()); err != nil {
		c.log.WithError(err).Warn("failed to persist portal session")
	}

	c.log.Info("portal login succeeded")
	return nil
}

func (c *Client) setCookies(cookies []SessionCookie) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return
	}
	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, sc := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{Name: sc.Name, Value: sc.Value, Path: "/"})
	}
	c.httpClient.Jar.SetCookies(u, httpCookies)
}

func (c *Client) currentCookies() []SessionCookie {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil
	}
	var cookies []SessionCookie
	for _, ck := range c.httpClient.Jar.Cookies(u) {
		cookies = append(cookies, SessionCookie{Name: ck.Name, Value: ck.Value})
	}
	return cookies
}

// looksAuthenticated probes for domain markers of the rendered inbox
func looksAuthenticated(body, finalURL string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "otp") ||
		strings.Contains(lower, "sms") ||
		strings.Contains(finalURL, "my_sms") ||
		strings.Contains(finalURL, "portal")
}

// extractCSRFToken pulls the value of the hidden _token input from the
// login form. Returns an empty string when the form has none.
func extractCSRFToken(r io.Reader) string {
	doc, err := html.Parse(r)
	if err != nil {
		return ""
	}

	var token string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if token != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "input" {
			var name, value string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				}
			}
			if name == "_token" {
				token = value
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return token
}
