package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitudev/secretboot/pkg/memory"
)

func TestWipe(t *testing.T) {
	b := []byte("sensitive")
	memory.Wipe(b)
	assert.Equal(t, make([]byte, len("sensitive")), b)
}

func TestWipeAll(t *testing.T) {
	a := []byte("token")
	b := []byte("plaintext")
	memory.WipeAll(a, nil, b)
	assert.Equal(t, make([]byte, 5), a)
	assert.Equal(t, make([]byte, 9), b)
}
