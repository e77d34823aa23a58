package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devcage/devcage/internal/models"
	"github.com/devcage/devcage/pkg/client"
)

// newLifecycleCmd builds one of the single-container operation commands.
func newLifecycleCmd(use, short string, submit func(*client.Client, context.Context, string) (models.OperationAccepted, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			op, err := submit(cli, ctx, args[0])
			if err != nil {
				return err
			}
			return reportOperation(ctx, cli, op)
		},
	}
}

// newBulkCmd builds one of the all-managed-containers commands.
func newBulkCmd(use, short string, submit func(*client.Client, context.Context) (models.OperationAccepted, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			op, err := submit(cli, ctx)
			if err != nil {
				return err
			}
			return reportOperation(ctx, cli, op)
		},
	}
}

func newGroupCmd() *cobra.Command {
	group := &cobra.Command{
		Use:   "group",
		Short: "Operate on container groups",
	}

	group.AddCommand(&cobra.Command{
		Use:   "start NAME",
		Short: "Start every member of a group in declared order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			op, err := cli.StartGroup(ctx, args[0])
			if err != nil {
				return err
			}
			return reportOperation(ctx, cli, op)
		},
	})

	group.AddCommand(&cobra.Command{
		Use:   "stop NAME",
		Short: "Stop every member of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			op, err := cli.StopGroup(ctx, args[0])
			if err != nil {
				return err
			}
			return reportOperation(ctx, cli, op)
		},
	})

	return group
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [OPERATION_ID]",
		Short: "Show operation status (all operations when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			if len(args) == 1 {
				snap, err := cli.GetOperation(ctx, args[0])
				if err != nil {
					return err
				}
				printOperation(snap)
				return nil
			}

			snaps, err := cli.ListOperations(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTATUS\tTARGETS\tFAILED\tCREATED")
			for _, snap := range snaps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					snap.ID, snap.Kind, snap.Status, len(snap.Targets),
					snap.Counters.Failed, snap.CreatedAt.Format("15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel OPERATION_ID",
		Short: "Request best-effort cancellation of an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			snap, err := cli.CancelOperation(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("cancellation requested for %s (status: %s)\n", snap.ID, snap.Status)
			return nil
		},
	}
}

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List declared containers with their live state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			details, err := cli.ListContainers(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tIMAGE\tGROUP")
			for _, d := range details {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Spec.Name, d.Status.State, d.Spec.Image, d.Spec.Group)
			}
			return w.Flush()
		},
	}
}

func newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List declared groups with live member counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			groups, err := cli.ListGroups(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMEMBERS\tRUNNING\tEXITED\tABSENT")
			for _, g := range groups {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", g.Name, len(g.Members), g.Running, g.Exited, g.Absent)
			}
			return w.Flush()
		},
	}
}

func newLogsCmd() *cobra.Command {
	var tail string

	cmd := &cobra.Command{
		Use:   "logs NAME",
		Short: "Print a container's recent log output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			logs, err := cli.ContainerLogs(ctx, args[0], tail)
			if err != nil {
				return err
			}
			fmt.Print(logs)
			return nil
		},
	}
	cmd.Flags().StringVar(&tail, "tail", "100", "number of trailing log lines")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server and runtime health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			health, err := cli.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("status: %s\nruntime ok: %v\nversion: %s\n", health.Status, health.RuntimeOK, health.Version)
			if health.RuntimeDetail != "" {
				fmt.Printf("runtime detail: %s\n", health.RuntimeDetail)
			}
			return nil
		},
	}
}

// reportOperation prints the accepted operation and optionally blocks until
// it settles.
func reportOperation(ctx context.Context, cli *client.Client, op models.OperationAccepted) error {
	fmt.Printf("operation %s accepted (%s, %d targets)\n", op.OperationID, op.Kind, len(op.Targets))
	if !waitForOp {
		return nil
	}

	snap, err := cli.WaitForOperation(ctx, op.OperationID, pollInterval)
	if err != nil {
		return err
	}
	printOperation(snap)
	if snap.Status != models.OperationStatusCompleted || snap.Counters.Failed > 0 {
		return fmt.Errorf("operation %s finished with status %s (%d failed)", snap.ID, snap.Status, snap.Counters.Failed)
	}
	return nil
}

func printOperation(snap models.OperationSnapshot) {
	fmt.Printf("operation: %s\nkind: %s\nstatus: %s\n", snap.ID, snap.Kind, snap.Status)
	fmt.Printf("counters: started=%d already_running=%d stopped=%d not_running=%d restarted=%d removed=%d failed=%d\n",
		snap.Counters.Started, snap.Counters.AlreadyRunning, snap.Counters.Stopped,
		snap.Counters.NotRunning, snap.Counters.Restarted, snap.Counters.Removed, snap.Counters.Failed)
	for _, msg := range snap.Errors {
		fmt.Printf("error: %s\n", msg)
	}
	for name, result := range snap.Results {
		if result.Outcome == models.OutcomeFailed {
			fmt.Printf("target %s: %s (%s)\n", name, result.Outcome, result.Detail)
		} else {
			fmt.Printf("target %s: %s\n", name, result.Outcome)
		}
	}
	if snap.CompletedAt != nil {
		fmt.Printf("completed: %s\n", snap.CompletedAt.Format("2006-01-02 15:04:05"))
	}
}
