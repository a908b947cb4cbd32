package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jordigilh/taskforge/pkg/task"
)

var (
	runDescription string
	runDomain      string
	runTargets     []string
	runMaxRetries  int
	runNoVerify    bool
	runArtifacts   []string
)

var runCmd = &cobra.Command{
	Use:   "run <vtid> <title>",
	Short: "Submit a task and block until it reaches a terminal status",
	Args:  cobra.ExactArgs(2),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDescription, "description", "", "free-text task description passed to the adapter")
	runCmd.Flags().StringVar(&runDomain, "domain", "", "force a domain instead of letting the classifier decide (frontend|backend|memory|mixed)")
	runCmd.Flags().StringArrayVar(&runTargets, "target", nil, "a target path the task is expected to touch (repeatable)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "override the default retry budget (0 keeps the configured default)")
	runCmd.Flags().BoolVar(&runNoVerify, "no-verify", false, "trust the adapter's claim and skip the completion-verification pipeline entirely")
	runCmd.Flags().StringArrayVar(&runArtifacts, "artifact", nil, "an expected artifact path (repeatable)")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	a, err := newApp(configPath)
	if err != nil {
		return err
	}

	vtid, title := args[0], args[1]

	retry := task.RetryParams{
		MaxRetries:        a.cfg.Orchestrator.MaxRetries,
		RetryDelay:        a.cfg.Orchestrator.RetryDelay,
		BackoffMultiplier: a.cfg.Orchestrator.RetryBackoffMultiplier,
	}
	if runMaxRetries > 0 {
		retry.MaxRetries = runMaxRetries
	}

	t := task.Task{
		ID:                uuid.NewString(),
		VTID:              vtid,
		Title:             title,
		Description:       runDescription,
		Domain:            task.Domain(runDomain),
		TargetPaths:       runTargets,
		Budget:            task.DefaultChangeBudget(),
		Retry:             retry,
		ExpectedArtifacts: runArtifacts,
		SkipVerification:  runNoVerify,
	}

	st := a.orch.Submit(t)
	fmt.Fprintf(cmd.OutOrStdout(), "submitted %s (%s)\n", st.Task.VTID, st.Task.ID)

	poll := a.cfg.Orchestrator.PollingInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	for !st.Status.Terminal() {
		time.Sleep(poll)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (retries=%d)\n", st.Task.VTID, st.Status, st.RetryCount)
	if st.Status != task.StatusCompleted {
		cmd.SilenceUsage = true
		return fmt.Errorf("task %s did not complete: final status %s", st.Task.VTID, st.Status)
	}
	return nil
}
