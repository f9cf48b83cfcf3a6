package service

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pinShape = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func TestGenerateTenThousandUniquePINs(t *testing.T) {
	g := NewPINGenerator()
	seen := make(map[string]bool, 10000)
	exists := func(_ context.Context, p string) (bool, error) { return seen[p], nil }

	for i := 0; i < 10000; i++ {
		pin, err := g.Generate(context.Background(), exists)
		require.NoError(t, err)
		require.Regexp(t, pinShape, pin)
		require.False(t, seen[pin], "duplicate pin %s", pin)
		seen[pin] = true
	}
}

func TestGenerateRedrawsTakenPIN(t *testing.T) {
	// 16 zero bytes draw "AAAAAAAA"; the following 16 bytes of 1 draw "BBBBBBBB".
	src := append(bytes.Repeat([]byte{0}, 16), bytes.Repeat([]byte{1}, 16)...)
	g := &PINGenerator{Rand: bytes.NewReader(src)}
	calls := 0
	pin, err := g.Generate(context.Background(), func(_ context.Context, p string) (bool, error) {
		calls++
		return p == "AAAAAAAA", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBB", pin)
	assert.Equal(t, 2, calls)
}

func TestGenerateRejectsBiasedBytes(t *testing.T) {
	// 252..255 are discarded; 36 maps back to 'A'.
	src := append([]byte{252, 253, 254, 255, 36}, bytes.Repeat([]byte{35}, 31)...)
	g := &PINGenerator{Rand: bytes.NewReader(src)}
	pin, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, "A9999999", pin)
}

func TestGenerateGivesUp(t *testing.T) {
	g := NewPINGenerator()
	_, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, ErrPINExhausted)

	boom := errors.New("db down")
	_, err = g.Generate(context.Background(), func(context.Context, string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}
