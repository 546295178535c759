package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the service-wide structured logger. JSON output, level
// from LOG_LEVEL, service name stamped on every line.
func NewLogger(serviceName string) *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(os.Stdout)

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	log.AddHook(&serviceFieldHook{service: serviceName})
	return log
}

type serviceFieldHook struct {
	service string
}

func (h *serviceFieldHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *serviceFieldHook) Fire(e *logrus.Entry) error {
	e.Data["service"] = h.service
	return nil
}
