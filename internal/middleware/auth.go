package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
)

const InitDataHeader = "X-Telegram-Init-Data"

var (
	ErrMissingInitData = errors.New("init data is missing")
	ErrBadSignature    = errors.New("init data signature mismatch")
	ErrExpiredInitData = errors.New("init data expired")
	ErrNoUser          = errors.New("init data carries no user")
)

// Session is the identity attached to an authenticated request.
type Session struct {
	Identity   models.Identity
	StartParam string
	AuthDate   time.Time
	// Dev is set when the configured development identity was used.
	Dev bool
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

type AuthConfig struct {
	BotToken string
	MaxAge   time.Duration
	// DevUserID, when non-zero, is used for requests without init data.
	DevUserID int64
	Now       func() time.Time
}

// ParseInitData checks the Telegram WebApp init data signature and extracts
// the user.
func ParseInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*Session, error) {
	if raw == "" {
		return nil, ErrMissingInitData
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, err
	}

	hash := values.Get("hash")
	if hash == "" || botToken == "" {
		return nil, ErrBadSignature
	}
	if !hmac.Equal([]byte(SignInitData(values, botToken)), []byte(strings.ToLower(hash))) {
		return nil, ErrBadSignature
	}

	session := &Session{StartParam: values.Get("start_param")}
	if ts, err := strconv.ParseInt(values.Get("auth_date"), 10, 64); err == nil {
		session.AuthDate = time.Unix(ts, 0)
	}
	if maxAge > 0 && (session.AuthDate.IsZero() || now.Sub(session.AuthDate) > maxAge) {
		return nil, ErrExpiredInitData
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, ErrNoUser
	}
	if err := json.Unmarshal([]byte(userJSON), &session.Identity); err != nil {
		return nil, err
	}
	if session.Identity.TelegramID <= 0 {
		return nil, ErrNoUser
	}
	return session, nil
}

// SignInitData returns the hex signature Telegram puts into the hash field.
// The hash field itself is ignored.
func SignInitData(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func initDataFromRequest(r *http.Request) string {
	if v := r.Header.Get(InitDataHeader); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "tma ") {
		return strings.TrimPrefix(auth, "tma ")
	}
	return ""
}

// Auth resolves the caller's identity from init data. Without init data the
// development identity is used if one is configured; otherwise the request
// is refused.
func Auth(cfg AuthConfig, logger *utils.Logger) func(http.Handler) http.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := initDataFromRequest(r)

			var session *Session
			switch {
			case raw != "":
				s, err := ParseInitData(raw, cfg.BotToken, cfg.MaxAge, now())
				if err != nil {
					logger.Warnf("init data rejected: %v", err)
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				session = s
			case cfg.DevUserID != 0:
				session = &Session{
					Identity: models.Identity{TelegramID: cfg.DevUserID, FirstName: "Dev"},
					AuthDate: now(),
					Dev:      true,
				}
			default:
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// RequireAdmin lets through only sessions whose user passes isAdmin.
func RequireAdmin(isAdmin func(userID int64) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFrom(r.Context())
			if !ok || !isAdmin(s.Identity.TelegramID) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
