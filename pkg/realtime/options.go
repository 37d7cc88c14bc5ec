package realtime

import (
	"time"

	"go.uber.org/zap"
)

// DefaultEndpoint is the stream path used when none is configured
const DefaultEndpoint = "/api/events"

// Recorder receives subscriber metrics
type Recorder interface {
	RecordFrameDispatched(kind string)
	RecordFrameDiscarded(reason string)
	RecordHandlerFailure(kind string)
	RecordStreamState(state string)
	RecordHandlerDuration(kind string, duration time.Duration)
}

// Option configures a Subscriber
type Option func(*Subscriber)

// WithEndpoint sets the stream URL the token is appended to
func WithEndpoint(endpoint string) Option {
	return func(s *Subscriber) {
		s.endpoint = endpoint
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics Recorder) Option {
	return func(s *Subscriber) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithStateListener registers fn to observe state transitions.
// fn is called synchronously and must not call back into the Subscriber.
func WithStateListener(fn func(State)) Option {
	return func(s *Subscriber) {
		s.onState = fn
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordFrameDispatched(string)                {}
func (nopRecorder) RecordFrameDiscarded(string)                 {}
func (nopRecorder) RecordHandlerFailure(string)                 {}
func (nopRecorder) RecordStreamState(string)                    {}
func (nopRecorder) RecordHandlerDuration(string, time.Duration) {}
