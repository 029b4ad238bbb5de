package config

import (
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/pkg/logger/console"
)

// 环境变量
const (
	EnvNumCores  = "DEDUPEKIT_NUM_CORES"
	EnvTempDir   = "DEDUPEKIT_TEMP_DIR"
	EnvThreshold = "DEDUPEKIT_THRESHOLD"
	EnvDebug     = "DEDUPEKIT_DEBUG"
)

// ApplyEnv 读取当前目录的 .env（不存在时忽略），再用环境变量覆盖配置。
// 无法解析的值被忽略。
func (c *Config) ApplyEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("no .env file found, using system environment variables")
	}
	if v, ok := os.LookupEnv(EnvNumCores); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Matcher.NumCores = n
		}
	}
	if v, ok := os.LookupEnv(EnvTempDir); ok {
		c.Matcher.TempDir = v
	}
	if v, ok := os.LookupEnv(EnvThreshold); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Matcher.Threshold = f
		}
	}
	if v, ok := os.LookupEnv(EnvDebug); ok {
		if v == "true" || v == "false" {
			c.Matcher.Debug = v == "true"
		}
	}
}

// InitLogger 用控制台后端初始化全局 logger，Debug 决定级别
func (c *Config) InitLogger(out io.Writer) {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  c.Matcher.Debug,
		Prefix: "dedupekit",
		Output: out,
	}))
}
