package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBackend = errors.New("backend down")
var errMiss = errors.New("miss")

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Config{Name: "cache", FailureThreshold: 2, Timeout: time.Minute}, nil)
	fail := func(context.Context) error { return errBackend }

	assert.ErrorIs(t, b.Do(context.Background(), fail), errBackend)
	assert.ErrorIs(t, b.Do(context.Background(), fail), errBackend)
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerIgnoresListedErrors(t *testing.T) {
	b := New(Config{Name: "cache", FailureThreshold: 1}, nil, errMiss)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(context.Background(), func(context.Context) error { return errMiss }), errMiss)
	}
	assert.Equal(t, "closed", b.State())
}
