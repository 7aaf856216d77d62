package channel

import "errors"

var (
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("channel: provider closed")

	// ErrNoNotifier is returned by New without a notifier.
	ErrNoNotifier = errors.New("channel: notifier is required")
)
