// Copyright 2025 Conveyor Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-conveyor/conveyor/internal/orchestrator/config"
	"github.com/go-conveyor/conveyor/internal/orchestrator/engine"
	"github.com/go-conveyor/conveyor/internal/orchestrator/graph"
	"github.com/go-conveyor/conveyor/internal/orchestrator/notify"
	"github.com/go-conveyor/conveyor/internal/orchestrator/router"
	"github.com/go-conveyor/conveyor/internal/orchestrator/state"
	httpserver "github.com/go-conveyor/conveyor/internal/server/http"
	"github.com/go-conveyor/conveyor/pkg/bus"
	"github.com/go-conveyor/conveyor/pkg/log"
	"github.com/go-conveyor/conveyor/pkg/runner"
	"github.com/go-conveyor/conveyor/pkg/version"
)

var confDir string

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "CI/CD pipeline orchestrator",
	Long:  "Receives repository webhooks, dispatches pipeline stages to agents over the message bus and tracks their results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&confDir, "conf", "conf.d", "conf directory, e.g. --conf ./conf.d")
	rootCmd.AddCommand(version.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	appConf := config.NewConf(confDir)

	log.MustInit(&appConf.Log)
	defer log.Sync()
	log.Infof("starting orchestrator on %s (pwd %s)", runner.Hostname, runner.Pwd)

	broker, err := bus.New(&appConf.Queue)
	if err != nil {
		return err
	}
	defer broker.Close()

	store := state.NewStore()
	loader := graph.NewLoader(appConf.Pipeline.Dir, appConf.Pipeline.GraphDefaults())
	notifier := notify.NewDispatcher(notify.Conf{
		WebhookURL: appConf.Notify.WebhookURL,
		Timeout:    appConf.Notify.Timeout,
		Attempts:   appConf.Notify.Attempts,
	})

	eng := engine.New(engine.Conf{
		RetryDelay:     appConf.Pipeline.RetryDelay,
		PublishTimeout: appConf.Queue.PublishTimeout,
		ReapInterval:   appConf.Reaper.Interval,
		TTL:            appConf.Reaper.TTL,
	}, store, broker, loader, notifier)

	if err := eng.Start(context.Background()); err != nil {
		return err
	}
	defer eng.Stop()

	ginEngine, api := httpserver.NewEngine(appConf.Http)
	router.Register(api, eng, appConf.Webhook.Secret)
	shutdown := httpserver.Serve(appConf.Http, ginEngine)
	defer shutdown()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

EXIT:
	for {
		sig := <-sc
		log.Infof("received signal: %v", sig)
		switch sig {
		case syscall.SIGHUP:
			// config watcher reloads on its own
		default:
			break EXIT
		}
	}
	return nil
}
