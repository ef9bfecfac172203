package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResubscribeRelaysEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := make(chan int, 4)
	out := Resubscribe(ctx, SupervisorOptions{Name: "test"}, func(ctx context.Context) (<-chan int, error) {
		return inner, nil
	})

	inner <- 1
	inner <- 2

	assert.Equal(t, 1, <-out)
	assert.Equal(t, 2, <-out)
}

func TestResubscribeRedialsAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	out := Resubscribe(ctx, SupervisorOptions{
		Name:          "test",
		RetryInterval: time.Millisecond,
		MaxAttempts:   10,
	}, func(ctx context.Context) (<-chan int, error) {
		n := attempts.Add(1)
		if n < 3 {
			return nil, errors.New("connection refused")
		}
		ch := make(chan int, 1)
		ch <- 42
		return ch, nil
	})

	select {
	case v := <-out:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived after redials")
	}
	assert.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestResubscribeReconnectsWhenFeedDrops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	out := Resubscribe(ctx, SupervisorOptions{
		Name:          "test",
		RetryInterval: time.Millisecond,
		MaxAttempts:   10,
	}, func(ctx context.Context) (<-chan int, error) {
		n := int(attempts.Add(1))
		ch := make(chan int, 1)
		ch <- n
		close(ch) // connection drops right after one event
		return ch, nil
	})

	// Events keep flowing across reconnects.
	assert.Equal(t, 1, <-out)
	assert.Equal(t, 2, <-out)
	assert.Equal(t, 3, <-out)
}

func TestResubscribeGivesUpAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	out := Resubscribe(ctx, SupervisorOptions{
		Name:          "test",
		RetryInterval: time.Millisecond,
		MaxAttempts:   3,
	}, func(ctx context.Context) (<-chan int, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	})

	select {
	case _, ok := <-out:
		require.False(t, ok, "channel must close, not deliver")
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed after exhausting attempts")
	}
	assert.Equal(t, int32(3), attempts.Load())
}

func TestResubscribeStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	out := Resubscribe(ctx, SupervisorOptions{Name: "test"}, func(ctx context.Context) (<-chan int, error) {
		return make(chan int), nil
	})

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed after context cancel")
	}
}
