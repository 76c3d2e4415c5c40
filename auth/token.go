package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service tokens let sibling intervention applications call the
// internal surface without sharing the raw internal secret.

// GenerateServiceToken signs a short-lived HS256 token for a caller
func GenerateServiceToken(caller string, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": caller,
		"exp": time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyServiceToken parses and validates a service token, returning
// the caller name
func VerifyServiceToken(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("token claims malformed")
	}
	caller, _ := claims["sub"].(string)
	return caller, nil
}
