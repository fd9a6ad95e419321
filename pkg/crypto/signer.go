// Package crypto содержит криптографию шлюза: подпись запросов к торговому
// API и логона FIX сессии ключом оператора, хеширование пароля ops API.
package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Ошибки загрузки и использования ключа
var (
	ErrNoPEMBlock   = errors.New("no PEM block found in key data")
	ErrNotRSAKey    = errors.New("key is not an RSA private key")
	ErrEmptyPayload = errors.New("payload to sign is empty")
)

// Signer подписывает произвольные строки приватным RSA ключом оператора.
// Биржа проверяет подпись RSA-PSS / SHA-256, закодированную base64.
// Один и тот же ключ используется для HTTP заголовков и FIX логона.
type Signer struct {
	key *rsa.PrivateKey
}

// LoadSigner читает приватный ключ из PEM файла
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParseSigner(data)
}

// ParseSigner разбирает приватный ключ из PEM данных.
// Поддерживает PKCS#1 и PKCS#8 контейнеры.
func ParseSigner(pemData []byte) (*Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Signer{key: key}, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSAKey
	}
	return &Signer{key: key}, nil
}

// Sign возвращает base64 RSA-PSS подпись SHA-256 дайджеста payload
func (s *Signer) Sign(payload string) (string, error) {
	if payload == "" {
		return "", ErrEmptyPayload
	}

	digest := sha256.Sum256([]byte(payload))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
