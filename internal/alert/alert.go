// Package alert pages operators about faults no retry can fix, such as
// rejected push credentials.
package alert

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Alerter delivers one operator alert.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

// Multi fans an alert out to every configured channel. It attempts all of
// them and joins the errors.
type Multi struct {
	alerters []Alerter
	logger   *zap.Logger
}

func NewMulti(logger *zap.Logger, alerters ...Alerter) *Multi {
	return &Multi{
		alerters: alerters,
		logger:   logger,
	}
}

func (m *Multi) Alert(ctx context.Context, subject, message string) error {
	var errs []error
	for _, a := range m.alerters {
		if err := a.Alert(ctx, subject, message); err != nil {
			m.logger.Warn("alert channel failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of configured channels.
func (m *Multi) Len() int {
	return len(m.alerters)
}

// LogAlerter writes alerts to the log. It is always part of the chain so an
// alert is never silently lost.
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (l *LogAlerter) Alert(ctx context.Context, subject, message string) error {
	l.logger.Error("operator alert",
		zap.String("subject", subject),
		zap.String("message", message),
	)
	return nil
}
