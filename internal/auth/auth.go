package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"tank-monitor-service/internal/models"
)

// Manager issues and validates the session tokens carrying the caller's
// identity context.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// Claims is the JWT payload. The scoping ids here are the only source of
// identity downstream; handlers never trust client-supplied filter params for
// non-admin roles.
type Claims struct {
	ConsumerID    string `json:"consumer_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	DistributorID string `json:"distributor_id,omitempty"`
	jwt.StandardClaims
}

// NewManager creates an auth manager with the given signing secret and token
// lifetime.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// GenerateToken signs a token for an authenticated consumer.
func (m *Manager) GenerateToken(identity models.Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		ConsumerID:    identity.ConsumerID,
		Name:          identity.Name,
		Role:          string(identity.Role),
		DistributorID: identity.DistributorID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(m.ttl).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    "tank-monitor-service",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses a token and returns the identity it carries.
func (m *Manager) ValidateToken(tokenString string) (models.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return models.Identity{}, err
	}
	if !token.Valid {
		return models.Identity{}, errors.New("invalid token")
	}

	identity := models.Identity{
		Role:          models.Role(claims.Role),
		ConsumerID:    claims.ConsumerID,
		DistributorID: claims.DistributorID,
		Name:          claims.Name,
	}
	if !identity.Valid() {
		return models.Identity{}, fmt.Errorf("token claims missing scope id for role %q", claims.Role)
	}
	return identity, nil
}

// HashPassword creates a bcrypt hash for account registration.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a stored hash against a login attempt.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
