// internal/domain/alert/notifier.go
package alert

import "context"

// Notifier delivers operator-facing alerts such as misconfiguration reports.
// This decouples the application from the delivery channel.
type Notifier interface {
	Alert(ctx context.Context, text string) error
}

// Nop discards alerts. Used when no operator channel is configured.
type Nop struct{}

func (Nop) Alert(context.Context, string) error { return nil }
