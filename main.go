/*
The editor host: opens the game and edit windows and renders both views
with the testbed drawers.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-editor/engine"
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/testbed"
)

func main() {
	configPath := flag.String("config", "editor.toml", "path to the editor configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("failed to load %s: %s", *configPath, err)
		os.Exit(1)
	}

	tb := testbed.NewTestGame(cfg)

	e, err := engine.New(cfg, tb.Game)
	if err != nil {
		os.Exit(1)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the run loop stops on the next tick
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil || runErr != nil {
		os.Exit(1)
	}
}
