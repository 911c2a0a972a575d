// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "testKey"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, "testValue")

		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, "testValue", combined.Value(key))
		assert.Nil(t, combined.Err())
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())

		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()

		assert.Eventually(t, func() bool {
			return combined.Err() != nil
		}, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("CancelledBySecondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())

		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		cancelSecondary()

		// Propagation happens on the internal goroutine, so poll for it.
		assert.Eventually(t, func() bool {
			return combined.Err() != nil
		}, 100*time.Millisecond, 10*time.Millisecond)
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("ExplicitCancellation", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()

		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}
