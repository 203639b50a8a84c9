package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
)

const (
	maxKeygenAttempts = 3
	maxUniqueAttempts = 5
)

var errWeakKey = errors.New("key generation produced degenerate key material")

// KeyGen produces an ed25519 keypair.
type KeyGen func() (ed25519.PublicKey, ed25519.PrivateKey, error)

func defaultKeyGen() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// degenerate reports all-zero or all-identical bytes.
func degenerate(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	for _, c := range b[1:] {
		if c != b[0] {
			return false
		}
	}
	return true
}

// generateKey retries a keygen whose seed or public key looks degenerate.
func generateKey(gen KeyGen) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	for i := 0; i < maxKeygenAttempts; i++ {
		pub, priv, err := gen()
		if err != nil {
			return nil, nil, err
		}
		if len(priv) != ed25519.PrivateKeySize || degenerate(priv.Seed()) || degenerate(pub) {
			continue
		}
		return pub, priv, nil
	}
	return nil, nil, errWeakKey
}
