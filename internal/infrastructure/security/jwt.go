package security

import (
	"crypto/hmac"
	"encoding/base64"
	"strings"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeSession = "session"
	TokenTypeContent = "content"
)

type SessionClaims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	Type  string      `json:"type"`
	jwt.RegisteredClaims
}

type ContentClaims struct {
	LessonID string `json:"lesson_id"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret     []byte
	sessionTTL time.Duration
	contentTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, sessionTTL, contentTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		contentTTL: contentTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for issuing and expiry checks.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

func (m *TokenManager) IssueSession(user *domain.User) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.sessionTTL)
	claims := SessionClaims{
		Email: user.Email,
		Role:  user.Role,
		Type:  TokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token, err := m.sign(claims)
	return token, exp, err
}

func (m *TokenManager) IssueContent(userID, lessonID uuid.UUID) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.contentTTL)
	claims := ContentClaims{
		LessonID: lessonID.String(),
		Type:     TokenTypeContent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := m.sign(claims)
	return token, exp, err
}

func (m *TokenManager) VerifySession(token string) (*SessionClaims, error) {
	var claims SessionClaims
	if err := m.verify(token, &claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeSession {
		return nil, domain.ErrTokenMalformed
	}
	if err := m.checkExpiry(claims.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, domain.ErrTokenMalformed
	}
	return &claims, nil
}

func (m *TokenManager) VerifyContent(token string) (*ContentClaims, error) {
	var claims ContentClaims
	if err := m.verify(token, &claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeContent {
		return nil, domain.ErrTokenMalformed
	}
	if err := m.checkExpiry(claims.ExpiresAt); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (m *TokenManager) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// verify checks the signature segment byte for byte before decoding any claims.
func (m *TokenManager) verify(token string, claims jwt.Claims) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return domain.ErrTokenMalformed
	}

	sig, err := jwt.SigningMethodHS256.Sign(parts[0]+"."+parts[1], m.secret)
	if err != nil {
		return err
	}
	expected := base64.RawURLEncoding.EncodeToString(sig)
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return domain.ErrBadSignature
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return domain.ErrTokenMalformed
	}
	if parsed.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return domain.ErrTokenMalformed
	}
	return nil
}

func (m *TokenManager) checkExpiry(exp *jwt.NumericDate) error {
	if exp == nil {
		return domain.ErrTokenMalformed
	}
	if !m.now().Before(exp.Time) {
		return domain.ErrTokenExpired
	}
	return nil
}

