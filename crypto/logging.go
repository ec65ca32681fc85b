package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// previewLen is how many leading bytes of sensitive data may appear in logs.
const previewLen = 8

// LoggerHelper accumulates logrus fields for one call site. Every entry
// carries "package" and "function"; the rest is added fluently before a
// single terminal Debug/Info/Warn/Error call.
type LoggerHelper struct {
	fields logrus.Fields
}

// NewLogger starts a helper for function in package pkg.
func NewLogger(pkg, function string) *LoggerHelper {
	return &LoggerHelper{fields: logrus.Fields{"package": pkg, "function": function}}
}

// WithField sets one field.
func (l *LoggerHelper) WithField(key string, value interface{}) *LoggerHelper {
	l.fields[key] = value
	return l
}

// WithFields merges fields, overwriting existing keys.
func (l *LoggerHelper) WithFields(fields logrus.Fields) *LoggerHelper {
	for k, v := range fields {
		l.fields[k] = v
	}
	return l
}

// WithError records the failing operation and, when err is non-nil, its text.
func (l *LoggerHelper) WithError(err error, operation string) *LoggerHelper {
	l.fields["operation"] = operation
	if err != nil {
		l.fields["error"] = err.Error()
	}
	return l
}

func (l *LoggerHelper) log(level logrus.Level, message string) {
	logrus.WithFields(l.fields).Log(level, message)
}

func (l *LoggerHelper) Debug(message string) { l.log(logrus.DebugLevel, message) }
func (l *LoggerHelper) Info(message string)  { l.log(logrus.InfoLevel, message) }
func (l *LoggerHelper) Warn(message string)  { l.log(logrus.WarnLevel, message) }
func (l *LoggerHelper) Error(message string) { l.log(logrus.ErrorLevel, message) }

// Fields returns a copy of the accumulated fields.
func (l *LoggerHelper) Fields() logrus.Fields {
	out := make(logrus.Fields, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

// SecureFieldHash describes sensitive data for logging as its size and a
// hex preview of at most the first eight bytes.
func SecureFieldHash(data []byte, name string) logrus.Fields {
	var preview string
	switch {
	case len(data) == 0:
		preview = "nil"
	case len(data) <= previewLen:
		preview = fmt.Sprintf("%x", data)
	default:
		preview = fmt.Sprintf("%x...", data[:previewLen])
	}
	return logrus.Fields{
		name + "_preview": preview,
		name + "_size":    len(data),
	}
}

// OperationFields builds the "operation" and "status" fields, merged with
// any extra field sets in order.
func OperationFields(operation, status string, extra ...logrus.Fields) logrus.Fields {
	fields := logrus.Fields{"operation": operation, "status": status}
	for _, set := range extra {
		for k, v := range set {
			fields[k] = v
		}
	}
	return fields
}
