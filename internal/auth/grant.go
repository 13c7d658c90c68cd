package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GrantClaims binds a channel authorization to one user on one connection.
// A grant is issued by the broadcasting auth endpoint and presented by the
// client in its subscribe request; it is useless on any other connection.
type GrantClaims struct {
	UserID       int64  `json:"user_id"`
	ConnectionID string `json:"connection_id"`
	Channel      string `json:"channel"`
	jwt.RegisteredClaims
}

// IssueGrant signs a short-lived grant for (userID, channel) bound to the
// given connection.
func IssueGrant(cfg *JWTConfig, userID int64, connID, channel string) (string, error) {
	ttl := cfg.GrantTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	now := time.Now()
	claims := GrantClaims{
		UserID:       userID,
		ConnectionID: connID,
		Channel:      channel,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// VerifyGrant checks the grant signature and that it was issued for exactly
// this user, connection and channel.
func VerifyGrant(cfg *JWTConfig, tokenString string, userID int64, connID, channel string) error {
	token, err := jwt.ParseWithClaims(tokenString, &GrantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return fmt.Errorf("parse grant: %w", err)
	}

	claims, ok := token.Claims.(*GrantClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid grant claims")
	}

	if claims.UserID != userID {
		return fmt.Errorf("grant user mismatch")
	}
	if claims.ConnectionID != connID {
		return fmt.Errorf("grant connection mismatch")
	}
	if claims.Channel != channel {
		return fmt.Errorf("grant channel mismatch")
	}
	return nil
}
