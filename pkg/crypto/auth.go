package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки проверки пароля
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
)

// DefaultCost - стоимость bcrypt для пароля ops API
const DefaultCost = 12

// HashPassword хеширует пароль ops API через bcrypt
// (хеш кладётся в переменную окружения, не сам пароль)
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword сравнивает пароль с bcrypt хешем (constant-time)
func VerifyPassword(password, hash string) error {
	if password == "" || hash == "" {
		return ErrEmptyPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
