package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger
var schedulerLogger *logrus.Logger
var accountantLogger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
	})
	logger.SetLevel(logrus.InfoLevel)

	schedulerLogger = newComponentLogger("scheduler_msg")
	accountantLogger = newComponentLogger("accountant_msg")
}

func newComponentLogger(msgKey string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   msgKey,
		},
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

func GetLogger() *logrus.Logger {
	return logger
}

// GetSchedulerLogger returns the logger for per-opportunity scheduling decisions.
func GetSchedulerLogger() *logrus.Logger {
	return schedulerLogger
}

// GetAccountantLogger returns the logger for credit bookkeeping.
func GetAccountantLogger() *logrus.Logger {
	return accountantLogger
}

func SetLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(logLevel)
	return nil
}

// SetSchedulerLogLevel adjusts both component loggers.
func SetSchedulerLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	schedulerLogger.SetLevel(logLevel)
	accountantLogger.SetLevel(logLevel)
	return nil
}

func SetFormatter(formatter logrus.Formatter) {
	logger.SetFormatter(formatter)
}
