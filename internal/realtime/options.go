package realtime

import "time"

type options struct {
	typingTTL time.Duration
}

type Option func(*options)

func defaultOptions() options {
	return options{typingTTL: 5 * time.Second}
}

// WithTypingTTL bounds how long a typing indicator may live without a
// typing-stopped event before the router clears it itself.
func WithTypingTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.typingTTL = d
		}
	}
}
