// Package console 是基于 charmbracelet/log 的控制台日志后端。
package console

import (
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/rushteam/dedupekit/pkg/logger"
)

// ConsoleLogger 使用 charmbracelet/log 实现 logger.LoggerInstance。
type ConsoleLogger struct {
	logger *log.Logger
}

var _ logger.LoggerInstance = (*ConsoleLogger)(nil)

// ConsoleLoggerParams 是 ConsoleLogger 的构造参数。
type ConsoleLoggerParams struct {
	Debug  bool
	Prefix string
	// Output 为空时写 stderr
	Output io.Writer
}

// NewConsoleLogger 创建控制台 logger。
func NewConsoleLogger(params ConsoleLoggerParams) *ConsoleLogger {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	out := params.Output
	if out == nil {
		out = os.Stderr
	}
	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          params.Prefix,
	})
	return &ConsoleLogger{logger: l}
}

func (c *ConsoleLogger) Log(message string, keyvals ...any) {
	c.logger.Print(message, keyvals...)
}

func (c *ConsoleLogger) Debug(message string, keyvals ...any) {
	c.logger.Debug(message, keyvals...)
}

func (c *ConsoleLogger) Info(message string, keyvals ...any) {
	c.logger.Info(message, keyvals...)
}

func (c *ConsoleLogger) Warn(message string, keyvals ...any) {
	c.logger.Warn(message, keyvals...)
}

func (c *ConsoleLogger) Error(message string, keyvals ...any) {
	c.logger.Error(message, keyvals...)
}
