package auth

import (
	"golang.org/x/crypto/bcrypt"
	"gwi.com/shot-suggestor/internal/config"
)

// HashPassword returns a bcrypt hash using the configured cost.
func HashPassword(plain string) (string, error) {
	cost := config.AppConfig.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPasswordHash compares a bcrypt hash with a plain password.
func CheckPasswordHash(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
