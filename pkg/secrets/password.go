package secrets

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// hashWorkers bounds the number of concurrent bcrypt hashes so password
// hashing never starves the request-handling goroutine pool.
var hashWorkers = make(chan struct{}, 8)

// HashPassword hashes plaintext with bcrypt off the calling goroutine,
// releasing it back to the caller once the blocking worker slot is free.
func HashPassword(ctx context.Context, plaintext string) (string, error) {
	select {
	case hashWorkers <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	type result struct {
		hash string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-hashWorkers }()
		h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
		done <- result{string(h), err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("secrets: hashing password: %w", r.err)
		}
		return r.hash, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ComparePassword reports whether plaintext matches the bcrypt hash.
func ComparePassword(ctx context.Context, hash, plaintext string) (bool, error) {
	select {
	case hashWorkers <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-hashWorkers }()
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
		done <- result{err == nil, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && r.err != bcrypt.ErrMismatchedHashAndPassword {
			return false, fmt.Errorf("secrets: comparing password: %w", r.err)
		}
		return r.ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
