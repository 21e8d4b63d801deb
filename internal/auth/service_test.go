package auth

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"assistanthub/internal/config"
	"assistanthub/internal/redis"
	"assistanthub/internal/storage"
)

func newTestService(t *testing.T, db *sql.DB, states StateStore) (*Service, *httptest.Server) {
	t.Helper()
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","refresh_token":"refresh-1","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	cfg := config.Default()
	cfg.Google.ClientID = "client-id"
	cfg.Google.ClientSecret = "client-secret"
	cfg.BasicConfig.AppURL = "http://localhost:3000"
	svc, err := NewService(db, cfg, states)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:   "https://accounts.example.com/auth",
		TokenURL:  tokenSrv.URL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return svc, tokenSrv
}

func TestStartBuildsConsentURL(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc, _ := newTestService(t, db, nil)

	raw, err := svc.Start(context.Background(), "me@example.com", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" || q.Get("response_type") != "code" {
		t.Fatalf("missing offline consent params: %s", raw)
	}
	if q.Get("redirect_uri") != "http://localhost:3000"+CallbackPath {
		t.Fatalf("unexpected redirect uri %q", q.Get("redirect_uri"))
	}
	if q.Get("scope") != defaultScope || q.Get("state") == "" {
		t.Fatalf("unexpected scope/state: %s", raw)
	}
}

func TestStartWithoutClientID(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc, err := NewService(db, config.Default(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Start(context.Background(), "", "http://localhost"); !errors.Is(err, ErrMissingClientID) {
		t.Fatalf("expected ErrMissingClientID, got %v", err)
	}
	if svc.CanExchange() {
		t.Fatalf("exchange should be disabled without credentials")
	}
	if _, err := svc.Complete(context.Background(), "s", "c"); !errors.Is(err, ErrExchangeDisabled) {
		t.Fatalf("expected ErrExchangeDisabled, got %v", err)
	}
}

func TestCompleteStoresEncryptedToken(t *testing.T) {
	t.Setenv(tokenKeyEnv, strings.Repeat("k", 32))
	db := openTestDB(t)
	defer db.Close()
	svc, _ := newTestService(t, db, nil)
	ctx := context.Background()

	consent, err := svc.Start(ctx, "me@example.com", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	u, _ := url.Parse(consent)
	state := u.Query().Get("state")

	email, err := svc.Complete(ctx, state, "good-code")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if email != "me@example.com" {
		t.Fatalf("unexpected email %q", email)
	}

	var stored string
	if err := db.QueryRow(`SELECT token FROM calendar_credentials WHERE email = ?`, email).Scan(&stored); err != nil {
		t.Fatalf("query token: %v", err)
	}
	if strings.Contains(stored, "access-1") {
		t.Fatalf("token stored in plaintext")
	}

	ts, err := svc.TokenSource(ctx, email)
	if err != nil || ts == nil {
		t.Fatalf("token source: %v", err)
	}
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected token %+v", tok)
	}

	if _, err := svc.Complete(ctx, state, "good-code"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("replayed state should be rejected, got %v", err)
	}
}

func TestCompleteRejectsBadInput(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc, _ := newTestService(t, db, nil)
	ctx := context.Background()

	if _, err := svc.Complete(ctx, "unknown", "good-code"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	consent, _ := svc.Start(ctx, "me@example.com", "")
	u, _ := url.Parse(consent)
	if _, err := svc.Complete(ctx, u.Query().Get("state"), "bad-code"); err == nil {
		t.Fatalf("expected exchange error")
	}
	ts, err := svc.TokenSource(ctx, "me@example.com")
	if err != nil || ts != nil {
		t.Fatalf("no credentials should yield a nil source, got %v %v", ts, err)
	}
}

func TestPlaintextTokenWithoutKey(t *testing.T) {
	t.Setenv(tokenKeyEnv, "")
	db := openTestDB(t)
	defer db.Close()
	svc, _ := newTestService(t, db, nil)
	tok := &oauth2.Token{AccessToken: "plain", Expiry: time.Now().Add(time.Hour)}
	if err := svc.saveToken(context.Background(), "p@example.com", tok); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := svc.loadToken(context.Background(), "p@example.com")
	if err != nil || got.AccessToken != "plain" {
		t.Fatalf("load: %+v %v", got, err)
	}
}

func TestPlaintextTokenRejectedWithKey(t *testing.T) {
	t.Setenv(tokenKeyEnv, strings.Repeat("k", 32))
	db := openTestDB(t)
	defer db.Close()
	svc, _ := newTestService(t, db, nil)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO calendar_credentials (email, token, updated_at) VALUES (?, ?, ?)`,
		"planted@example.com", `{"access_token":"forged","token_type":"Bearer"}`, time.Now().UTC()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := svc.loadToken(ctx, "planted@example.com"); err == nil {
		t.Fatalf("plaintext token must not load when a key is configured")
	}
	if ts, err := svc.TokenSource(ctx, "planted@example.com"); err == nil || ts != nil {
		t.Fatalf("expected token source error, got %v %v", ts, err)
	}
}

func TestMemoryStateStoreExpires(t *testing.T) {
	store := NewMemoryStateStore().(*memoryStateStore)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Put(ctx, "a", "v", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "a", "v", time.Minute); err == nil {
		t.Fatalf("expected collision")
	}
	if err := store.Put(ctx, "b", "v", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Take(ctx, "a"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expired state should be invalid, got %v", err)
	}
	now = now.Add(-2 * time.Minute)
	if v, err := store.Take(ctx, "b"); err != nil || v != "v" {
		t.Fatalf("take: %q %v", v, err)
	}
}

func TestCalendarRedirect(t *testing.T) {
	cases := []struct {
		status, message, want string
	}{
		{"success", "", "http://app/assistants/calendar?auth=success"},
		{"error", "Missing_client_id", "http://app/assistants/calendar?auth=error&message=Missing_client_id"},
		{"error", "bad thing", "http://app/assistants/calendar?auth=error&message=bad+thing"},
		{"simulation", "", "http://app/assistants/calendar?auth=simulation"},
	}
	for _, c := range cases {
		if got := CalendarRedirect("http://app/", c.status, c.message); got != c.want {
			t.Fatalf("CalendarRedirect(%q,%q) = %q, want %q", c.status, c.message, got, c.want)
		}
	}
}

func TestRedisStateStore(t *testing.T) {
	client, cleanup := newRedisCacheClient(t)
	defer cleanup()

	store := NewRedisStateStore(client)
	ctx := context.Background()
	if err := store.Put(ctx, "s1", "payload", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, err := store.Take(ctx, "s1"); err != nil || v != "payload" {
		t.Fatalf("take: %q %v", v, err)
	}
	if _, err := store.Take(ctx, "s1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second take should fail, got %v", err)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed auth tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	return client, func() { client.Close() }
}
