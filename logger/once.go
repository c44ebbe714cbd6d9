package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// Once is the do-once warning channel: each key is logged the first time
// only, so a misconfigured column or callback does not flood the log.
type Once struct {
	logger zerolog.Logger
	mutex  sync.Mutex
	seen   map[string]struct{}
}

func NewOnce(l zerolog.Logger) *Once {
	return &Once{
		logger: l,
		seen:   map[string]struct{}{},
	}
}

// Warn logs err under key unless key was already reported. It returns true
// when the message was written.
func (o *Once) Warn(key string, err error) bool {
	o.mutex.Lock()
	_, done := o.seen[key]
	if !done {
		o.seen[key] = struct{}{}
	}
	o.mutex.Unlock()
	if done {
		return false
	}
	o.logger.Warn().Str("key", key).Err(err).Msg("row model warning")
	return true
}

func (o *Once) Reported(key string) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	_, done := o.seen[key]
	return done
}

func (o *Once) Logger() zerolog.Logger {
	return o.logger
}
