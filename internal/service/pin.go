package service

import (
	"context"
	"crypto/rand"
	"io"
)

// PINAlphabet is the 36 symbol alphabet PINs are drawn from.
const PINAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// PINLength is the number of symbols in a PIN.
const PINLength = 8

// maxPINAttempts bounds how many candidates Generate draws before giving up.
const maxPINAttempts = 32

// PINGenerator draws uniformly distributed PINs from a cryptographic source.
type PINGenerator struct {
	Rand io.Reader
}

// NewPINGenerator returns a generator backed by crypto/rand.
func NewPINGenerator() *PINGenerator { return &PINGenerator{Rand: rand.Reader} }

// Generate returns a PIN for which exists reports false. Candidates already
// taken are re-drawn; after maxPINAttempts hits ErrPINExhausted is returned.
func (g *PINGenerator) Generate(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < maxPINAttempts; i++ {
		pin, err := g.draw()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, pin)
		if err != nil {
			return "", err
		}
		if !taken {
			return pin, nil
		}
	}
	return "", ErrPINExhausted
}

// draw uses rejection sampling: bytes >= 252 (7*36) are discarded so every
// symbol is equally likely.
func (g *PINGenerator) draw() (string, error) {
	const limit = 256 - 256%len(PINAlphabet)
	out := make([]byte, 0, PINLength)
	buf := make([]byte, PINLength*2)
	for len(out) < PINLength {
		if _, err := io.ReadFull(g.Rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, PINAlphabet[int(b)%len(PINAlphabet)])
			if len(out) == PINLength {
				break
			}
		}
	}
	return string(out), nil
}
