// Package system defines the lifecycle contract for long-running components.
package system

import "context"

// Service is a lifecycle-managed component. Pollers and schedulers implement
// it so the application can start and stop them deterministically; Stop must
// not return until the component's goroutines have exited or ctx expires.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
