package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/scrypt"
)

// redisplaySalt is fixed so the same server secret always yields the same
// key across restarts.
var redisplaySalt = []byte("photoframe/upload-token-redisplay")

// Sealed is the stored form of a redisplayable secret.
type Sealed struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
}

func (s Sealed) IsZero() bool {
	return s.Encrypted == "" && s.IV == ""
}

type Redisplay struct {
	aead cipher.AEAD
}

// NewRedisplay derives an AES-256 key from serverSecret with scrypt. The
// derivation is deliberately slow, so build one Redisplay per process.
func NewRedisplay(serverSecret string) (*Redisplay, error) {
	if serverSecret == "" {
		return nil, errors.New("server secret is required")
	}
	key, err := scrypt.Key([]byte(serverSecret), redisplaySalt, 1<<14, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Redisplay{aead: aead}, nil
}

func (r *Redisplay) Seal(plain string) (Sealed, error) {
	nonce := make([]byte, r.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, err
	}
	ct := r.aead.Seal(nil, nonce, []byte(plain), nil)
	return Sealed{
		Encrypted: hex.EncodeToString(ct),
		IV:        hex.EncodeToString(nonce),
	}, nil
}

// Open is best-effort: any decoding or authentication failure, including a
// changed server secret, yields ok=false.
func (r *Redisplay) Open(s Sealed) (plain string, ok bool) {
	nonce, err := hex.DecodeString(s.IV)
	if err != nil || len(nonce) != r.aead.NonceSize() {
		return "", false
	}
	ct, err := hex.DecodeString(s.Encrypted)
	if err != nil {
		return "", false
	}
	pt, err := r.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", false
	}
	return string(pt), true
}
