package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/dujiao-next/discount-engine/internal/app"
	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset     = "\033[0m"
	ansiBold      = "\033[1m"
	ansiDim       = "\033[2m"
	ansiCyan      = "\033[36m"
	ansiBrightMag = "\033[95m"
)

func main() {
	// 解析命令行参数
	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	printStartupBanner(mode)

	// 加载配置
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if isWeakSecret(cfg.Platform.WebhookSecret) {
		if cfg.Server.Mode == "release" {
			stdLog.Printf("警告: 全局 Webhook 密钥为空或过弱，未单独配置密钥的商户将无法通过验签")
		} else {
			stdLog.Printf("警告: 全局 Webhook 密钥为空或过弱，建议在生产环境中配置")
		}
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

func printStartupBanner(mode string) {
	fmt.Println(ansiBrightMag + "==============================================" + ansiReset)
	fmt.Println(ansiCyan + ansiBold + "  Discount Engine" + ansiReset + ansiDim + "  mode=" + mode + ansiReset)
	fmt.Println(ansiBrightMag + "==============================================" + ansiReset)
}

func isWeakSecret(secret string) bool {
	if len(strings.TrimSpace(secret)) < 16 {
		return true
	}
	normalized := strings.ToLower(secret)
	return strings.Contains(normalized, "change-me") || strings.Contains(normalized, "your-secret")
}
