package auth

import (
	"fmt"

	"aidanwoods.dev/go-paseto"
)

// credentialsAssertion binds sealed blobs to their purpose so a surface token
// can never be opened as credentials or vice versa.
var credentialsAssertion = []byte("starwatch-credentials")

// Sealer encrypts credentials at rest as PASETO v4.local tokens.
type Sealer struct {
	symmetricKey paseto.V4SymmetricKey
}

// NewSealer creates a sealer from the raw 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	symmetricKey, err := symmetricKeyFrom(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{symmetricKey: symmetricKey}, nil
}

// Seal encrypts creds.
func (s *Sealer) Seal(creds *Credentials) (string, error) {
	token := paseto.NewToken()
	if err := token.Set("credentials", creds); err != nil {
		return "", fmt.Errorf("seal credentials: %w", err)
	}
	return token.V4Encrypt(s.symmetricKey, credentialsAssertion), nil
}

// Open decrypts a sealed blob.
func (s *Sealer) Open(sealed string) (*Credentials, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	token, err := parser.ParseV4Local(s.symmetricKey, sealed, credentialsAssertion)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}

	var creds Credentials
	if err := token.Get("credentials", &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &creds, nil
}
