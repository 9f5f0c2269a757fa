package main

import (
	"log"

	"github.com/qingyun-c/qingyun-drive/cmd/server"
)

func main() {
	app, cleanup, err := server.NewApp()
	if err != nil {
		log.Fatalf("应用初始化失败: %v", err)
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		log.Fatalf("应用运行失败: %v", err)
	}
}
