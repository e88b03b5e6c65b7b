package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed Secret is opened.
var ErrDestroyed = errors.New("secret has been destroyed")

// Secret holds sensitive bytes encrypted inside a memguard enclave.
// The zero value and a Secret built from empty input are both valid and
// reveal an empty value.
type Secret struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewSecret seals data into an enclave. memguard wipes the source slice, so
// callers must not reuse it.
func NewSecret(data []byte) *Secret {
	s := &Secret{}
	if len(data) > 0 {
		s.enclave = memguard.NewEnclave(data)
	}
	return s
}

// NewSecretString is a convenience for string-typed credentials.
func NewSecretString(value string) *Secret {
	return NewSecret([]byte(value))
}

// Empty reports whether the secret holds no bytes.
func (s *Secret) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enclave == nil
}

// With decrypts the secret into a locked buffer, passes the plaintext to fn
// and wipes the buffer afterwards. fn must not retain the slice.
func (s *Secret) With(fn func(plain []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if s.enclave == nil {
		return fn(nil)
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// String returns a copy of the plaintext. The copy lives in ordinary Go
// memory; prefer With where the consumer accepts bytes.
func (s *Secret) String() (string, error) {
	var out string
	err := s.With(func(plain []byte) error {
		out = string(plain)
		return nil
	})
	return out, err
}

// Destroy drops the enclave. It is idempotent. The enclave key is released
// process-wide by memguard.Purge at exit.
func (s *Secret) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}
