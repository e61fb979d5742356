package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	// До вызова Init логгер пишет в никуда, чтобы пакеты и тесты не падали на nil.
	Log = logrus.New()
	Log.SetOutput(io.Discard)
}

// Init инициализирует структурированный логгер.
func Init(level string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// Используем JSON формат для production, text для development
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// ForCampus возвращает запись лога с привязкой к кампусу.
func ForCampus(campusID string) *logrus.Entry {
	return Log.WithField("campus_id", campusID)
}
