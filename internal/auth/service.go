// Package auth connects users' Google calendars through the OAuth
// authorization-code flow and keeps their tokens.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"assistanthub/internal/config"
)

const (
	CallbackPath     = "/api/auth/google-calendar"
	calendarPagePath = "/assistants/calendar"
	defaultScope     = "https://www.googleapis.com/auth/calendar"
)

var (
	// ErrMissingClientID means the consent flow cannot start.
	ErrMissingClientID = errors.New("google client id not configured")
	// ErrExchangeDisabled means no client secret is configured, so codes cannot be redeemed.
	ErrExchangeDisabled = errors.New("oauth client secret not configured")
)

// Service runs the Google Calendar OAuth flow and stores the resulting tokens.
type Service struct {
	db     *sql.DB
	oauth  oauth2.Config
	states StateStore
	cipher *tokenCipher
	now    func() time.Time
}

type pendingAuth struct {
	Email       string `json:"email"`
	RedirectURL string `json:"redirect_url"`
}

// NewService builds the OAuth client from the google config section. The
// redirect URL falls back to APP_URL plus the callback path.
func NewService(db *sql.DB, cfg *config.Config, states StateStore) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if states == nil {
		states = NewMemoryStateStore()
	}
	cipher, err := newTokenCipherFromEnv()
	if err != nil {
		return nil, err
	}
	if cipher == nil {
		log.Printf("%s not set, calendar tokens are stored unencrypted", tokenKeyEnv)
	}
	scopes := cfg.Google.Scopes
	if len(scopes) == 0 {
		scopes = []string{defaultScope}
	}
	redirect := cfg.Google.RedirectURL
	if redirect == "" && cfg.BasicConfig.AppURL != "" {
		redirect = strings.TrimRight(cfg.BasicConfig.AppURL, "/") + CallbackPath
	}
	return &Service{
		db: db,
		oauth: oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirect,
			Scopes:       scopes,
		},
		states: states,
		cipher: cipher,
		now:    time.Now,
	}, nil
}

// CanExchange reports whether authorization codes can be redeemed.
func (s *Service) CanExchange() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// Start records a fresh state for email and returns the consent URL. origin
// is used to build the redirect URL when none is configured.
func (s *Service) Start(ctx context.Context, email, origin string) (string, error) {
	if s.oauth.ClientID == "" {
		return "", ErrMissingClientID
	}
	state, err := generateToken()
	if err != nil {
		return "", err
	}
	cfg := s.configFor(origin)
	raw, err := json.Marshal(pendingAuth{Email: strings.TrimSpace(email), RedirectURL: cfg.RedirectURL})
	if err != nil {
		return "", err
	}
	if err := s.states.Put(ctx, state, string(raw), stateTTL); err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Complete validates the state, redeems the code and persists the token. It
// returns the email the token was stored under.
func (s *Service) Complete(ctx context.Context, state, code string) (string, error) {
	if !s.CanExchange() {
		return "", ErrExchangeDisabled
	}
	if state == "" {
		return "", ErrInvalidState
	}
	raw, err := s.states.Take(ctx, state)
	if err != nil {
		return "", err
	}
	var pending pendingAuth
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return "", ErrInvalidState
	}
	cfg := s.oauth
	cfg.RedirectURL = pending.RedirectURL
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if err := s.saveToken(ctx, pending.Email, tok); err != nil {
		return "", err
	}
	return pending.Email, nil
}

// TokenSource returns a refreshing token source for email, or nil when the
// email never connected a calendar. Refreshed tokens are written back.
func (s *Service) TokenSource(ctx context.Context, email string) (oauth2.TokenSource, error) {
	tok, err := s.loadToken(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	base := s.oauth.TokenSource(context.WithoutCancel(ctx), tok)
	return oauth2.ReuseTokenSource(tok, &savingTokenSource{svc: s, email: email, base: base, last: tok.AccessToken}), nil
}

func (s *Service) configFor(origin string) oauth2.Config {
	cfg := s.oauth
	if cfg.RedirectURL == "" && origin != "" {
		cfg.RedirectURL = strings.TrimRight(origin, "/") + CallbackPath
	}
	return cfg
}

func (s *Service) saveToken(ctx context.Context, email string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	stored, err := s.cipher.Encrypt(string(raw))
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM calendar_credentials WHERE email = ?`, email); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO calendar_credentials (email, token, updated_at) VALUES (?, ?, ?)`,
		email, stored, s.now().UTC(),
	); err != nil {
		return fmt.Errorf("insert credentials: %w", err)
	}
	return tx.Commit()
}

func (s *Service) loadToken(ctx context.Context, email string) (*oauth2.Token, error) {
	var stored string
	if err := s.db.QueryRowContext(ctx, `SELECT token FROM calendar_credentials WHERE email = ?`, email).Scan(&stored); err != nil {
		return nil, err
	}
	plain, err := s.cipher.Decrypt(stored)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(plain), &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

type savingTokenSource struct {
	svc   *Service
	email string
	base  oauth2.TokenSource
	last  string
}

func (t *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := t.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != t.last {
		t.last = tok.AccessToken
		if err := t.svc.saveToken(context.Background(), t.email, tok); err != nil {
			log.Printf("persist refreshed token for %s: %v", t.email, err)
		}
	}
	return tok, nil
}

// CalendarRedirect builds the UI location reporting an auth outcome.
func CalendarRedirect(appURL, status, message string) string {
	target := strings.TrimRight(appURL, "/") + calendarPagePath + "?auth=" + url.QueryEscape(status)
	if message != "" {
		target += "&message=" + url.QueryEscape(message)
	}
	return target
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
