/*
Runs one of the testbed samples, selected in the configuration file.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/foveal/engine"
	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/testbed"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration")
	sample := flag.String("sample", "", "overrides application.sample (triangle, vrs)")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		core.LogError("cannot load configuration: %s", err)
		return 1
	}
	if *sample != "" {
		cfg.Application.Sample = core.SampleKind(*sample)
		if err := cfg.Validate(); err != nil {
			core.LogError("%s", err)
			return 1
		}
	}
	core.SetLogLevel(cfg.Log.Level)

	game, err := testbed.NewGame(cfg)
	if err != nil {
		core.LogError("%s", err)
		return 1
	}

	e, err := engine.New(game)
	if err != nil {
		return 1
	}

	code := 0
	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		code = 1
	} else {
		// signal channel to capture system calls
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			<-sigCh
			e.Stop()
		}()

		if err := e.Run(); err != nil {
			code = 1
		}
		signal.Stop(sigCh)
	}

	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
		code = 1
	}
	return code
}
