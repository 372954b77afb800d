package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	policy := Policy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 5}
	attempts := 0
	err := Do(context.Background(), policy, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	policy := Policy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 5}
	sentinel := errors.New("bad request")
	attempts := 0
	err := Do(context.Background(), policy, func() error {
		attempts++
		return Permanent(sentinel)
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, attempts)
}

func TestDoValueReturnsResult(t *testing.T) {
	policy := Policy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 3}
	v, err := DoValue(context.Background(), policy, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}
