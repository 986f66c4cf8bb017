package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a (topic, modifier) partition does not exist.
	ErrNotFound = errors.New("batch not found")
	// ErrEmptyPool is matched by pool errors when no live proxy remains.
	ErrEmptyPool = errors.New("proxy pool is empty")
	// ErrFetchExhausted is returned when the retry policy gives up on a phrase.
	ErrFetchExhausted = errors.New("fetch attempts exhausted")
	// ErrQueueClosed is returned by Queue.Dequeue after the queue is closed and drained.
	ErrQueueClosed = errors.New("queue closed")
)

// ConfigError reports a job definition that cannot be used at all.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("job definition %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TopicError reports one malformed job entry; the rest of the job still runs.
type TopicError struct {
	Topic  string
	Reason string
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("invalid topic %q: %s", e.Topic, e.Reason)
}

// PersistError reports a failed batch write. It is fatal for the topic.
type PersistError struct {
	Topic    string
	Modifier string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist batch %s/%s: %v", e.Topic, e.Modifier, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
