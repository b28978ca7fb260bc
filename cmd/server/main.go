// Package main 是函数服务进程的入口点。
// 它注册示例函数，然后按命令行选项和环境变量选择其一并在 HTTP 端口上运行。
package main

import (
	"context"
	"os"

	"github.com/oriys/nimbus-functions/internal/app"
	"github.com/oriys/nimbus-functions/internal/functions"
	"github.com/oriys/nimbus-functions/internal/registry"
	"github.com/sirupsen/logrus"
)

func main() {
	reg := registry.MustNew(functions.All(logrus.StandardLogger())...)
	os.Exit(app.New(reg).Run(context.Background(), os.Args[1:]))
}
