// Package identity resolves the caller of an operation to a user record.
//
// A call is made either with a session token or with a client-held anonymous
// user id, never both. Authenticated operations require a verified token;
// anonymous operations reject one.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// Credentials are the identity inputs of one call.
type Credentials struct {
	Token           string
	AnonymousUserID string
	RemoteAddr      string
}

// Claims are the session token claims. Subject is the identity provider's user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Verifier checks HS256 session tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates token.
func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Sign issues a token for subject. Used by tooling and tests.
func (v *Verifier) Sign(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// UserStore is the user lookup the resolver needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
	CreateAnonymousUser(ctx context.Context) (*model.User, error)
}

// Resolver maps credentials to users.
type Resolver struct {
	verifier *Verifier
	users    UserStore
	log      *logger.Logger
}

// NewResolver creates a resolver.
func NewResolver(verifier *Verifier, users UserStore, log *logger.Logger) *Resolver {
	return &Resolver{verifier: verifier, users: users, log: log}
}

// Authenticated returns the user behind a valid session token.
func (r *Resolver) Authenticated(ctx context.Context, creds Credentials) (*model.User, error) {
	if creds.Token == "" {
		return nil, apperr.New(apperr.NotAuthenticated, "missing session token")
	}
	claims, err := r.verifier.Verify(creds.Token)
	if err != nil {
		return nil, &apperr.Error{Tag: apperr.NotAuthenticated, Message: "invalid session token", Cause: err}
	}

	user, err := r.users.GetUserByExternalID(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.Wrap(apperr.UnknownError, "failed to load user", err)
	}
	return user, nil
}

// Anonymous returns the anonymous user named by creds, creating one when the id
// is missing, malformed, unknown or belongs to an authenticated user. created
// reports whether a new user was made.
func (r *Resolver) Anonymous(ctx context.Context, creds Credentials) (user *model.User, created bool, err error) {
	if creds.Token != "" {
		if _, err := r.verifier.Verify(creds.Token); err == nil {
			return nil, false, apperr.New(apperr.UserAlreadyAuthenticated, "anonymous operation called with an active session")
		}
	}

	if id, ok := normalizeID(creds.AnonymousUserID); ok {
		u, err := r.users.GetUser(ctx, id)
		switch {
		case err == nil && u.IsAnonymous:
			return u, false, nil
		case err != nil && !apperr.Is(err, apperr.UserNotFound):
			r.log.Warn("anonymous user lookup failed", zap.String("user_id", id), zap.Error(err))
		}
	}

	u, err := r.users.CreateAnonymousUser(ctx)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// LookupAnonymous is Anonymous for read-only calls: it never creates a user and
// returns nil when creds name no existing anonymous user.
func (r *Resolver) LookupAnonymous(ctx context.Context, creds Credentials) (*model.User, error) {
	if creds.Token != "" {
		if _, err := r.verifier.Verify(creds.Token); err == nil {
			return nil, apperr.New(apperr.UserAlreadyAuthenticated, "anonymous operation called with an active session")
		}
	}

	id, ok := normalizeID(creds.AnonymousUserID)
	if !ok {
		return nil, nil
	}
	u, err := r.users.GetUser(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.UserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !u.IsAnonymous {
		return nil, nil
	}
	return u, nil
}

// RateKey identifies the caller for rate limiting: the token subject when it
// verifies, else the anonymous id when it names an existing anonymous user, else
// the client address. Ids the store does not know share the address key, so
// rotating made-up ids does not earn fresh counters. It only reads the store.
func (r *Resolver) RateKey(ctx context.Context, creds Credentials) string {
	if creds.Token != "" {
		if claims, err := r.verifier.Verify(creds.Token); err == nil {
			return "user:" + claims.Subject
		}
	}
	if id, ok := normalizeID(creds.AnonymousUserID); ok {
		u, err := r.users.GetUser(ctx, id)
		switch {
		case err == nil && u.IsAnonymous:
			return "anon:" + u.ID
		case err != nil && !apperr.Is(err, apperr.UserNotFound):
			r.log.Warn("anonymous user lookup failed", zap.String("user_id", id), zap.Error(err))
		}
	}
	return fmt.Sprintf("ip:%s", hostOnly(creds.RemoteAddr))
}

// NormalizeUserID reports whether s is a well-formed user id and returns its
// canonical form.
func NormalizeUserID(s string) (string, bool) {
	return normalizeID(s)
}

func normalizeID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
