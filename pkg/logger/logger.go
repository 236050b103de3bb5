package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger — тонкая обёртка над zap с тегом сервиса.
// Экземпляр, а не глобал: несколько движков (например в тестах) не должны
// делить одно состояние.
type Logger struct {
	z       *zap.Logger
	service string
}

func New(service string) (*Logger, error) {
	z, err := zap.NewProduction(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z: z, service: service}, nil
}

// Nop — для тестов.
func Nop() *Logger {
	return &Logger{z: zap.NewNop(), service: "test"}
}

// Named — копия логгера с другим тегом сервиса.
func (l *Logger) Named(service string) *Logger {
	return &Logger{z: l.z, service: service}
}

// Zap отдаёт низлежащий логгер для структурных полей.
func (l *Logger) Zap() *zap.Logger {
	return l.z.With(zap.String("service", l.service))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.z.With(zap.String("service", l.service)).Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.z.With(zap.String("service", l.service)).Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.z.With(zap.String("service", l.service)).Fatal(fmt.Sprintf(format, args...))
}

func (l *Logger) Sync() {
	_ = l.z.Sync()
}
