package host

import (
	pkglog "github.com/slatecast/slatecast/pkg/log"
)

// LogNotifier is the shipped host notifier: it records every GUI-bound
// notification in the structured log. A desktop shell embedding the
// core would replace it with its own event emitter; either way,
// notification failure never fails the triggering command.
type LogNotifier struct{}

// Notify logs the notification.
func (LogNotifier) Notify(event string, payload any) {
	pkglog.L().Debug().Str("event", event).Interface("payload", payload).Msg("host notification")
}
