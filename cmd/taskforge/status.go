package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusServerAddr string

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Fetch a submitted task's state record from a running taskforge server",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServerAddr, "server", "http://localhost:8080", "base URL of a running 'taskforge serve' instance")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("%s/tasks/%s", statusServerAddr, args[0]))
	if err != nil {
		return fmt.Errorf("taskforge: contacting %s: %w", statusServerAddr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("taskforge: server returned %s: %s", resp.Status, body)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		return err
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
