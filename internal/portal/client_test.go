package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otpearn/otpearn-server/internal/config"
)

const (
	fakeCSRFToken = "csrf-123"
	fakePassword  = "secret"
	fakeSession   = "sess-ok"
)

// newFakePortal simulates the remote portal: a login form carrying a hidden
// CSRF token, a cookie session issued on a correct credential post, and an
// inbox page that redirects anonymous visitors back to the login form.
func newFakePortal() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = r.ParseForm()
			if r.PostFormValue("_token") == fakeCSRFToken &&
				r.PostFormValue("password") == fakePassword {
				http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: fakeSession, Path: "/"})
				http.Redirect(w, r, "/portal/live/my_sms", http.StatusFound)
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		fmt.Fprintf(w, `<html><body><form method="post">`+
			`<input type="hidden" name="_token" value="%s">`+
			`<input name="email"><input name="password" type="password">`+
			`</form></body></html>`, fakeCSRFToken)
	})

	mux.HandleFunc("/portal/live/my_sms", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("portal_session"); err != nil || ck.Value != fakeSession {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		fmt.Fprint(w, "<html><body>Live SMS 1555000111 Your code is 9321</body></html>")
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, baseURL, password string) *Client {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	c, err := NewClient(config.PortalConfig{
		BaseURL:      baseURL,
		Email:        "user@example.com",
		Password:     password,
		CookiesFile:  filepath.Join(t.TempDir(), "cookies.json"),
		FetchTimeout: 5 * time.Second,
	}, log)
	require.NoError(t, err)
	return c
}

func TestLoginAndFetchInbox(t *testing.T) {
	server := newFakePortal()
	defer server.Close()

	c := newTestClient(t, server.URL, fakePassword)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))

	text, err := c.FetchInbox(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "1555000111")

	// The session was persisted for the next process.
	data, err := os.ReadFile(c.sessions.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "portal_session")
}

func TestLoginBadCredentials(t *testing.T) {
	server := newFakePortal()
	defer server.Close()

	c := newTestClient(t, server.URL, "wrong-password")

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestFetchInboxNotAuthenticated(t *testing.T) {
	server := newFakePortal()
	defer server.Close()

	c := newTestClient(t, server.URL, fakePassword)

	_, err := c.FetchInbox(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestFetchInboxServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, fakePassword)

	_, err := c.FetchInbox(context.Background())
	require.Error(t, err)
	// A transient upstream failure is not an authentication problem.
	assert.NotErrorIs(t, err, ErrNotAuthenticated)
}

func TestEnsureSessionLogsInWhenExpired(t *testing.T) {
	server := newFakePortal()
	defer server.Close()

	c := newTestClient(t, server.URL, fakePassword)
	ctx := context.Background()

	require.NoError(t, c.EnsureSession(ctx))

	text, err := c.FetchInbox(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Live SMS")

	// A second call rides the existing session.
	require.NoError(t, c.EnsureSession(ctx))
}

func TestExtractCSRFToken(t *testing.T) {
	page := `<html><body><form>` +
		`<input type="hidden" name="_token" value="abc123">` +
		`</form></body></html>`
	assert.Equal(t, "abc123", extractCSRFToken(strings.NewReader(page)))

	assert.Equal(t, "", extractCSRFToken(strings.NewReader("<html><body>no form</body></html>")))
}

func TestSessionStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	store := NewSessionStore(path)

	_, err := store.Load()
	assert.Error(t, err, "missing file is reported to the caller")

	cookies := []SessionCookie{{Name: "portal_session", Value: "abc"}}
	require.NoError(t, store.Save(cookies))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, cookies, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
