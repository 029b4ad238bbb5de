// Package logger 提供进程级的结构化日志分发器。
// 未调用 Init 之前所有日志调用均为空操作（库默认静默）。
package logger

import "sync"

// LoggerInstance 是日志后端接口。
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
}

// Logger 持有多个日志后端并把每次调用分发给全部后端。
type Logger struct {
	instances []LoggerInstance
}

var (
	singleton   *Logger
	singletonMu sync.RWMutex
)

func getSingleton() *Logger {
	singletonMu.RLock()
	defer singletonMu.RUnlock()
	return singleton
}

// Init 使用一个或多个后端初始化全局 logger，不传参数等价于关闭日志。
func Init(instances ...LoggerInstance) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if len(instances) == 0 {
		singleton = nil
		return
	}
	singleton = &Logger{instances: instances}
}

func dispatch(fn func(LoggerInstance)) {
	l := getSingleton()
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		fn(instance)
	}
}

// Log 以默认级别输出
func Log(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Log(message, keyvals...) })
}

// Debug 以 DEBUG 级别输出
func Debug(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Debug(message, keyvals...) })
}

// Info 以 INFO 级别输出
func Info(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Info(message, keyvals...) })
}

// Warn 以 WARN 级别输出
func Warn(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Warn(message, keyvals...) })
}

// Error 以 ERROR 级别输出
func Error(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Error(message, keyvals...) })
}
