package main

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jordigilh/taskforge/internal/config"
	"github.com/jordigilh/taskforge/internal/httpapi"
	"github.com/jordigilh/taskforge/pkg/task"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP façade so tasks can be submitted and polled remotely",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	a, err := newApp(configPath)
	if err != nil {
		return err
	}

	addr := ":" + a.cfg.Server.Port
	retry := task.RetryParams{
		MaxRetries:        a.cfg.Orchestrator.MaxRetries,
		RetryDelay:        a.cfg.Orchestrator.RetryDelay,
		BackoffMultiplier: a.cfg.Orchestrator.RetryBackoffMultiplier,
	}
	handler := httpapi.NewServer(a.orch, a.log, retry)

	if configPath != "" {
		watcher, werr := config.Watch(configPath, a.log, func(cfg *config.Config, rerr error) {
			if rerr != nil {
				return
			}
			// Only knobs with no effect on already-dispatched tasks are
			// applied live: the orchestrator, gate, and adapters were
			// wired once at startup from the original config and are not
			// torn down and rebuilt on reload.
			if lvl, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
				a.log.SetLevel(lvl)
			}
			if cfg.Logging.Format == "json" {
				a.log.SetFormatter(&logrus.JSONFormatter{})
			} else {
				a.log.SetFormatter(&logrus.TextFormatter{})
			}
		})
		if werr != nil {
			a.log.WithError(werr).Warn("taskforge: config hot-reload watch disabled")
		} else {
			defer watcher.Close()
		}
	}

	a.log.WithField("addr", addr).Info("taskforge: listening")
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", addr)
	return http.ListenAndServe(addr, handler)
}
