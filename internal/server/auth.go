package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// AuthConfig holds ops API authentication configuration.
type AuthConfig struct {
	APIKeys   []string      `yaml:"api_keys"`
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
}

// Auth authenticates ops API callers by static API key or signed JWT.
// Authentication is enforced only when at least one credential source is
// configured.
type Auth struct {
	config *AuthConfig
	logger *logrus.Logger
}

// NewAuth creates an authenticator.
func NewAuth(config *AuthConfig, logger *logrus.Logger) *Auth {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	return &Auth{config: config, logger: logger}
}

func (a *Auth) required() bool {
	return len(a.config.APIKeys) > 0 || a.config.JWTSecret != ""
}

// Authenticate validates a token as an API key first, then as a JWT.
func (a *Auth) Authenticate(token string) (string, error) {
	if token == "" {
		return "", errors.New("authentication token is required")
	}

	// Constant-time comparison against every configured key.
	for _, validKey := range a.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(validKey)) == 1 {
			return keyUserID(token), nil
		}
	}

	if a.config.JWTSecret != "" {
		if subject, err := a.validateJWT(token); err == nil {
			return subject, nil
		}
	}

	return "", errors.New("invalid authentication token")
}

// GenerateJWT issues a signed token for the given subject.
func (a *Auth) GenerateJWT(subject string) (string, error) {
	if a.config.JWTSecret == "" {
		return "", errors.New("jwt secret not configured")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "ai-router",
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.config.JWTExpiry)),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.config.JWTSecret))
}

func (a *Auth) validateJWT(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.config.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid JWT token")
	}
	return claims.Subject, nil
}

// Middleware enforces authentication on everything except the health and
// metrics endpoints.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if !a.required() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		userID, err := a.Authenticate(token)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
			}).Warn("Authentication failed")
			writeUnauthorized(w)
			return
		}

		a.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"path":    r.URL.Path,
		}).Debug("Authentication successful")

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	return ""
}

func keyUserID(apiKey string) string {
	if len(apiKey) >= 8 {
		return "key_" + apiKey[:8]
	}
	return "key_" + apiKey
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	response := fmt.Sprintf(`{"error":{"message":"unauthorized","type":"authentication_error","code":401},"timestamp":%d}`, time.Now().Unix())
	w.Write([]byte(response))
}
