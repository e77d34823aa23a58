// devcage is the command line client for the devcaged API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devcage/devcage/pkg/client"
)

var (
	serverURL    string
	timeout      time.Duration
	waitForOp    bool
	pollInterval time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "devcage",
		Short:         "Manage sandboxed development containers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("DEVCAGE_SERVER", "http://localhost:8475"), "devcaged server URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall command timeout")
	root.PersistentFlags().BoolVar(&waitForOp, "wait", false, "wait for the operation to settle")
	root.PersistentFlags().DurationVar(&pollInterval, "poll-interval", time.Second, "polling interval used with --wait")

	root.AddCommand(
		newLifecycleCmd("start", "Start a container", (*client.Client).StartContainer),
		newLifecycleCmd("stop", "Stop a container", (*client.Client).StopContainer),
		newLifecycleCmd("restart", "Restart a container", (*client.Client).RestartContainer),
		newLifecycleCmd("cleanup", "Stop and remove a container with its volumes and image", (*client.Client).CleanupContainer),
		newGroupCmd(),
		newBulkCmd("stop-all", "Stop all managed containers", (*client.Client).StopAll),
		newBulkCmd("restart-all", "Restart all managed containers", (*client.Client).RestartAll),
		newBulkCmd("cleanup-all", "Remove all managed containers", (*client.Client).CleanupAll),
		newStatusCmd(),
		newCancelCmd(),
		newPsCmd(),
		newGroupsCmd(),
		newLogsCmd(),
		newHealthCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() (*client.Client, error) {
	return client.New(
		client.WithBaseURL(serverURL),
		client.WithTimeout(timeout),
	)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
