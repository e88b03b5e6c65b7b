package secure

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "password", data: "p@ss;word"},
		{name: "token-sized value", data: "eyJ0eXAiOiJKV1QiLCJhbGciOiJSUzI1NiJ9.payload.signature"},
		{name: "empty", data: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewSecretString(tt.data)
			defer s.Destroy()

			assert.Equal(t, tt.data == "", s.Empty())

			got, err := s.String()
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestSecretWithPropagatesError(t *testing.T) {
	t.Parallel()

	s := NewSecretString("hunter22")
	defer s.Destroy()

	sentinel := errors.New("dial failed")
	err := s.With(func(plain []byte) error {
		assert.Equal(t, "hunter22", string(plain))
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestSecretDestroy(t *testing.T) {
	t.Parallel()

	s := NewSecretString("to-be-destroyed")
	s.Destroy()
	s.Destroy()

	_, err := s.String()
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestSecretConcurrentOpen(t *testing.T) {
	t.Parallel()

	s := NewSecretString("shared")
	defer s.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.String()
			assert.NoError(t, err)
			assert.Equal(t, "shared", got)
		}()
	}
	wg.Wait()
}
