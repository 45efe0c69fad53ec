package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// badgerLoggerAdapter routes badger's internal logging into zap. Badger is
// chatty at info level, so its info output is demoted to debug.
type badgerLoggerAdapter struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func (b *badgerLoggerAdapter) log(level zapcore.Level, format string, args ...interface{}) {
	if ce := b.logger.Check(level, strings.TrimSpace(fmt.Sprintf(format, args...))); ce != nil {
		ce.Write(zap.String("component", "badger"))
	}
}

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.log(zapcore.ErrorLevel, format, args...)
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.log(zapcore.WarnLevel, format, args...)
}

func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.log(zapcore.DebugLevel, format, args...)
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.log(zapcore.DebugLevel, format, args...)
}
