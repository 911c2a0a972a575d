// internal/browser/context.go
package browser

import "context"

// CombineContext derives a context from primary that is canceled when either
// primary or secondary is canceled. It inherits values from primary. This is
// the shape chromedp needs: the primary context carries the CDP connection,
// the secondary carries the per-operation deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
