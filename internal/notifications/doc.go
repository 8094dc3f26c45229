// Package notifications pushes job outcomes to ntfy.
//
// The service posts plain-text messages to the configured topic and degrades
// to a no-op when no topic is set. Listen attaches it to the events bus so
// completions and failures are announced without the workflow knowing about
// HTTP.
package notifications
