package jwt

import (
	"time"
)

// devSecretFallback keeps local development working when no secret was
// configured at all. Production deployments must set JWT_SECRET.
const devSecretFallback = "devJwtSecretDoNotUseInProduction"

// Service signs and validates tokens with the configured secret and expiry.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService creates a new JWT service
func NewService(secretKey string, expiry time.Duration) *Service {
	if secretKey == "" {
		secretKey = devSecretFallback
	}

	if expiry == 0 {
		expiry = 24 * time.Hour // Default to 24 hours
	}

	return &Service{
		secret: []byte(secretKey),
		expiry: expiry,
	}
}

// GenerateToken generates a JWT token for a user
func (s *Service) GenerateToken(userID uint, email string, role Role) (string, error) {
	return generateToken(s.secret, s.expiry, userID, email, role)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	return validateToken(s.secret, tokenString)
}
