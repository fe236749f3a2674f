package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"cdpledger/crypto"
	"cdpledger/observability/logging"
)

type contextKey string

const (
	contextKeyActor     contextKey = "rpc.actor"
	contextKeyRequestID contextKey = "rpc.request_id"
)

var (
	errMissingSecret = errors.New("auth secret not configured")
	errNoSubject     = errors.New("token subject required")
)

// AuthConfig configures HS256 bearer token verification. The token subject
// names the actor address for mutating calls.
type AuthConfig struct {
	HMACSecret    string
	Issuer        string
	Audience      string
	AdminSubjects []string
	ClockSkew     time.Duration
}

// Authenticator resolves bearer tokens to actor addresses.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	admins map[crypto.Address]struct{}
	logger *slog.Logger
}

// NewAuthenticator validates the admin subjects up front.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	auth := &Authenticator{
		cfg:    cfg,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		admins: make(map[crypto.Address]struct{}, len(cfg.AdminSubjects)),
		logger: logger,
	}
	for _, subject := range cfg.AdminSubjects {
		addr, err := crypto.DecodeAddress(subject)
		if err != nil {
			return nil, fmt.Errorf("rpc: admin subject %q: %w", subject, err)
		}
		auth.admins[addr] = struct{}{}
	}
	return auth, nil
}

// Middleware attaches the actor of a valid bearer token to the request.
// Requests without a token pass through anonymously; an invalid token is
// rejected outright.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if a == nil || tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := a.Actor(tokenString)
		if err != nil {
			a.logger.Warn("rpc: token rejected",
				slog.String("credential", logging.MaskAuthorization(r.Header.Get("Authorization"))),
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.Any("error", err))
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusUnauthorized, nil, codeUnauthorized, "invalid token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Actor verifies tokenString and decodes its subject.
func (a *Authenticator) Actor(tokenString string) (crypto.Address, error) {
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return crypto.ZeroAddress, err
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return crypto.ZeroAddress, err
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return crypto.ZeroAddress, err
	}
	if strings.TrimSpace(subject) == "" {
		return crypto.ZeroAddress, errNoSubject
	}
	return crypto.DecodeAddress(subject)
}

// IsAdmin reports whether actor may pause modules.
func (a *Authenticator) IsAdmin(actor crypto.Address) bool {
	if a == nil {
		return false
	}
	_, ok := a.admins[actor]
	return ok
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errMissingSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience mismatch")
		}
	}
	return nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func actorFrom(ctx context.Context) (crypto.Address, bool) {
	actor, ok := ctx.Value(contextKeyActor).(crypto.Address)
	return actor, ok && !actor.IsZero()
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}
