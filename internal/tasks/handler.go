package tasks

// ActionButton describes the optional button on a custom success
// notification. All three fields are required for the button to be
// shown: label, command, and the argument builder.
type ActionButton struct {
	Label     string
	Command   string
	BuildArgs func(task TaskInfo) []string
}

// SuccessNotification is a completion handler's resolved custom
// framing for a succeeded task. It only applies when TargetLocation is
// non-empty.
type SuccessNotification struct {
	Message        string
	TargetLocation string
	Button         *ActionButton
}

// valid reports whether the button contract is satisfied: label,
// command and arg-builder all present, or no button at all.
func (n *SuccessNotification) buttonValid() bool {
	if n.Button == nil {
		return true
	}
	return n.Button.Label != "" && n.Button.Command != "" && n.Button.BuildArgs != nil
}

// CompletionHandler supplies custom success framing for one operation
// name. Handlers are consulted only when a task completes with exactly
// StatusSucceeded; custom framing never masks failure, warning or
// cancel outcomes.
type CompletionHandler struct {
	// OperationName keys the registration; at most one handler per
	// operation name.
	OperationName string

	// Resolve produces the custom notification for a succeeded task,
	// or nil to fall back to the generic message.
	Resolve func(task TaskInfo, lastMessage string) *SuccessNotification
}
