/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command kernelsim boots one kernel.Kernel from a config file, starts the
// demo workload driver against its init process, and runs until told to
// stop. Grounded on manager/main.go's own flag/config/start/WaitForQuit/stop
// shape, applied here to a simulated kernel instead of a set of supervised
// real-OS processes.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"

	"github.com/AliEdalat/os-lab-5/config"
	"github.com/AliEdalat/os-lab-5/kernel"
	"github.com/AliEdalat/os-lab-5/log"
	"github.com/AliEdalat/os-lab-5/log/rotate"
	"github.com/AliEdalat/os-lab-5/utils"
	"github.com/AliEdalat/os-lab-5/workload"
)

const defConfigLoc string = `/opt/kernelsim/etc/kernelsim.cfg`

var (
	cfgFlag = flag.String("config-override", "", "Override config file path")
	cfgFile string
)

func init() {
	cfgFile = defConfigLoc
	flag.Parse()
	if *cfgFlag != `` {
		cfgFile = *cfgFlag
	}
}

func main() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		stdlog.Fatal("failed to load config file ", cfgFile, " ", err)
	}

	lg, err := buildLogger(cfg)
	if err != nil {
		stdlog.Fatal("failed to build logger ", err)
	}
	defer lg.Close()
	if err := lg.SetLevelString(cfg.Log.Level); err != nil {
		stdlog.Fatal("bad log level ", cfg.Log.Level, " ", err)
	}

	watcher, err := config.WatchLogLevel(cfgFile, func(level string) {
		if err := lg.SetLevelString(level); err != nil {
			lg.Warn("ignoring bad log level from config reload", log.KV("level", level), log.KVErr(err))
			return
		}
		lg.Info("log level reloaded from config file", log.KV("level", level))
	})
	if err != nil {
		lg.Warn("log level hot-reload disabled", log.KVErr(err))
	} else {
		defer watcher.Close()
	}

	k, err := kernel.New(cfg, lg)
	if err != nil {
		lg.FatalCode(1, "failed to construct kernel", log.KVErr(err))
	}

	d := workload.New(k, cfg, lg)
	initP, err := k.Boot(d.InitBody())
	if err != nil {
		lg.FatalCode(1, "failed to boot init", log.KVErr(err))
	}

	k.DumpDiagnostics("kernelsim")

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx, initP)

	lg.Info("kernelsim running", log.KV("pid", initP.Pid))
	sig := utils.WaitForQuit()
	lg.Info("received shutdown signal", log.KV("signal", sig.String()))

	cancel()
	k.Halt()
}

// buildLogger opens cfg.Log.Target: "stderr" attaches directly, anything
// else is treated as a file path rotated through log/rotate.FileRotator
// the same way the teacher's ingesters roll their own log files.
func buildLogger(cfg *config.KernelConfig) (*log.Logger, error) {
	if cfg.Log.Target == "" || cfg.Log.Target == "stderr" {
		return log.New("kernelsim", nopCloser{os.Stderr})
	}
	fr, err := rotate.Open(cfg.Log.Target, 0640)
	if err != nil {
		return nil, err
	}
	return log.New("kernelsim", fr)
}

type nopCloser struct{ *os.File }

func (nopCloser) Close() error { return nil }
