package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// LogrusAdapter routes watermill's internal logging into logrus
type LogrusAdapter struct {
	entry *logrus.Entry
}

func NewLogrusAdapter(log logrus.FieldLogger) *LogrusAdapter {
	return &LogrusAdapter{entry: log.WithField("component", "watermill")}
}

var _ watermill.LoggerAdapter = (*LogrusAdapter)(nil)

func (a *LogrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (a *LogrusAdapter) Info(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (a *LogrusAdapter) Debug(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (a *LogrusAdapter) Trace(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (a *LogrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LogrusAdapter{entry: a.entry.WithFields(logrus.Fields(fields))}
}
