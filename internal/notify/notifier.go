// Package notify abstracts user-facing outcome notifications so the
// task tracker stays independent of any particular rendering surface.
package notify

import "github.com/rs/zerolog"

// Action is an optional command button attached to a notification.
type Action struct {
	Label   string
	Command string
	Args    []string
}

// Notifier renders outcome notifications at three severities. The
// action, when present, only applies to Info.
type Notifier interface {
	Info(message string, action *Action)
	Warning(message string)
	Error(message string)
}

// LogNotifier is a Notifier that writes notifications to the log.
// Used when no interactive surface is attached.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

// Info logs an information-level notification.
func (n *LogNotifier) Info(message string, action *Action) {
	ev := n.logger.Info()
	if action != nil {
		ev = ev.Str("action_label", action.Label).Str("action_command", action.Command)
	}
	ev.Msg(message)
}

// Warning logs a warning-level notification.
func (n *LogNotifier) Warning(message string) {
	n.logger.Warn().Msg(message)
}

// Error logs an error-level notification.
func (n *LogNotifier) Error(message string) {
	n.logger.Error().Msg(message)
}
