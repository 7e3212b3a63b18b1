// Package credential keeps a sealed copy of the link credential on disk so
// the command-line tool can reach a paired radio without asking for it again.
//
// The credential is sealed with ChaCha20-Poly1305 under a key derived by
// scrypt from a device-bound secret (by default /etc/machine-id). A copy
// lifted off the storage card is useless on other hardware.
package credential

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/radio-control/linkctl/internal/persist"
)

const formatVersion = 1

var (
	// ErrNotFound is returned by Load when nothing was stored yet.
	ErrNotFound = errors.New("no stored credential")
	// ErrWrongKey is returned when the envelope does not open.
	ErrWrongKey = errors.New("wrong device key or corrupted credential")
)

// envelope is the on-disk JSON structure.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// Params are the scrypt cost parameters.
type Params struct {
	N, R, P int
}

// DefaultParams suits a Raspberry Pi class host.
var DefaultParams = Params{N: 1 << 15, R: 8, P: 1}

// Store seals the credential into a single file.
type Store struct {
	path   string
	secret []byte
	params Params
}

// NewStore creates a store at path sealed with secret.
func NewStore(path string, secret []byte, params Params) *Store {
	return &Store{path: path, secret: secret, params: params}
}

// NewStoreFromKeyFile reads the device secret from keyFile.
func NewStoreFromKeyFile(path, keyFile string, params Params) (*Store, error) {
	b, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read device key: %w", err)
	}
	secret := strings.TrimSpace(string(b))
	if secret == "" {
		return nil, fmt.Errorf("device key file %s is empty", keyFile)
	}
	return NewStore(path, []byte(secret), params), nil
}

// Save seals credential and atomically replaces the stored copy.
func (s *Store) Save(credential string) error {
	b, err := seal(s.secret, []byte(credential), s.params)
	if err != nil {
		return fmt.Errorf("failed to seal credential: %w", err)
	}
	return persist.WriteFile(s.path, b, 0o600)
}

// Load opens the stored credential.
func (s *Store) Load() (string, error) {
	b, err := persist.ReadFile(s.path)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", ErrNotFound
	}
	pt, err := open(s.secret, b)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Clear removes the stored credential.
func (s *Store) Clear() error {
	return persist.Remove(s.path)
}

func seal(secret, plaintext []byte, params Params) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := scrypt.Key(secret, salt, params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(envelope{
		V:      formatVersion,
		Salt:   salt,
		N:      params.N,
		R:      params.R,
		P:      params.P,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, plaintext, salt),
	})
}

func open(secret, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, ErrWrongKey
	}
	if env.V > formatVersion {
		return nil, fmt.Errorf("unsupported credential format %d", env.V)
	}

	key, err := scrypt.Key(secret, env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, ErrWrongKey
	}
	pt, err := aead.Open(nil, env.Nonce, env.Cipher, env.Salt)
	if err != nil {
		return nil, ErrWrongKey
	}
	return pt, nil
}
