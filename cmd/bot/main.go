package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mofkobot/internal/core"
	"mofkobot/plugins/aliaspro"
	"mofkobot/plugins/fontchanger"
	"mofkobot/plugins/regularm"
	"mofkobot/plugins/statusrotator"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := core.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	for _, p := range []core.Plugin{
		regularm.New(),
		aliaspro.New(),
		fontchanger.New(),
		statusrotator.New(),
	} {
		if err := app.Register(p); err != nil {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
	}

	if err := app.Run(ctx); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
