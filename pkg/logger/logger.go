package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with consent-domain helpers
type Logger struct {
	*logrus.Logger
}

// New creates a new JSON logger at the given level, defaulting to info
func New(level string) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// WithComponent creates a new logger entry with a component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithPatient creates a new logger entry scoped to a patient. Only the
// opaque patient identifier is logged, never record content.
func (l *Logger) WithPatient(patientID string) *logrus.Entry {
	return l.Logger.WithField("patient_id", patientID)
}

// ConsentOp logs the outcome of a consent operation with a uniform shape so
// downstream audit tooling can filter on the consent_op marker.
func (l *Logger) ConsentOp(operation, callerID, patientID string, success bool, fields map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"consent_op": true,
		"operation":  operation,
		"caller_id":  callerID,
		"patient_id": patientID,
		"success":    success,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}

	if success {
		entry.Info("Consent operation completed")
	} else {
		entry.Warn("Consent operation failed")
	}
}

// AccessCheck logs the outcome of an access predicate evaluation
func (l *Logger) AccessCheck(patientID, requesterID string, granted bool) {
	l.Logger.WithFields(logrus.Fields{
		"access_check": true,
		"patient_id":   patientID,
		"requester_id": requesterID,
		"granted":      granted,
	}).Info("Access check evaluated")
}

// LedgerTransaction logs a chaincode invocation and its result
func (l *Logger) LedgerTransaction(function string, args []string, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"ledger":   true,
		"function": function,
		"args":     args,
		"success":  success,
		"details":  details,
	})

	if success {
		entry.Info("Ledger transaction completed")
	} else {
		entry.Error("Ledger transaction failed")
	}
}

// HTTPRequest logs a completed HTTP request
func (l *Logger) HTTPRequest(method, path, clientIP string, statusCode int, durationMS int64) {
	entry := l.Logger.WithFields(logrus.Fields{
		"http_request": true,
		"method":       method,
		"path":         path,
		"client_ip":    clientIP,
		"status_code":  statusCode,
		"duration_ms":  durationMS,
	})

	if statusCode >= 400 {
		entry.Warn("HTTP request completed with error")
	} else {
		entry.Info("HTTP request completed")
	}
}
