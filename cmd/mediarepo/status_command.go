package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"mediarepo/internal/api"
	"mediarepo/internal/config"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/preflight"
	"mediarepo/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var refresh bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			fetch := client.Status
			if refresh {
				fetch = client.RefreshStatus
			}
			status, err := fetch(cmd.Context())
			if errors.Is(err, api.ErrDaemonUnavailable) {
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr != nil {
					return cfgErr
				}
				status, err = localStatus(cmd.Context(), cfg)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Rerun dependency checks on the daemon")
	return cmd
}

// localStatus builds a status report without a running daemon.
func localStatus(ctx context.Context, cfg *config.Config) (*api.DaemonStatus, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clients, _ := pipeline.ClientsFromConfig(cfg)
	status := &api.DaemonStatus{
		StorePath:    st.Path(),
		LockFilePath: cfg.LockPath(),
		Checks:       preflight.RunAll(ctx, cfg, st, clients),
		Workflow:     api.WorkflowStatus{JobStats: map[string]int{}},
	}
	stats, err := st.JobStats(ctx)
	if err != nil {
		return nil, err
	}
	for jobStatus, count := range stats {
		status.Workflow.JobStats[string(jobStatus)] = count
	}
	return status, nil
}

func renderStatus(out io.Writer, status *api.DaemonStatus, colorize bool) {
	printSection(out, "Daemon", colorize)
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Store", statusInfo, status.StorePath, colorize))
	if status.Running {
		workflowKind, workflowDetail := statusOK, "idle"
		if len(status.Workflow.Active) > 0 {
			workflowDetail = fmt.Sprintf("processing %d job(s)", len(status.Workflow.Active))
		}
		if !status.Workflow.Running {
			workflowKind, workflowDetail = statusWarn, "stopped"
		}
		fmt.Fprintln(out, renderStatusLine("Workflow", workflowKind, workflowDetail, colorize))
		if status.Workflow.LastError != "" {
			fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
		}
	}
	fmt.Fprintln(out)

	printSection(out, "Dependencies", colorize)
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Jobs", colorize)
	rows := jobStatsRows(status.Workflow.JobStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No pending jobs")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func jobStatsRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key, count := range stats {
		if count > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, strconv.Itoa(stats[key])})
	}
	return rows
}
