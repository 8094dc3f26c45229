package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediarepo/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and drive pending ingestion jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsProcessCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSource(cmd, func(src source) error {
				jobs, err := src.ListJobs(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pending jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.Name,
						job.Status,
						strconv.Itoa(len(job.Assets)),
						formatCounts(job.Counts),
						job.UpdatedAt,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Status", "Assets", "Progress", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (ingesting, failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job and its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSource(cmd, func(src source) error {
				job, err := src.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <job-id>",
		Short: "Trigger background processing of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *api.Client) error {
				resp, err := client.Process(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if resp.Triggered {
					fmt.Fprintf(cmd.OutOrStdout(), "Processing job %s\n", resp.JobID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s is already being processed\n", resp.JobID)
				}
				return nil
			})
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	var process bool

	cmd := &cobra.Command{
		Use:   "retry <job-id> <asset-id>",
		Short: "Move an errored asset back to pending",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *api.Client) error {
				asset, err := client.RetryAsset(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Asset %s is %s\n", asset.ID, asset.Status)
				if !process {
					return nil
				}
				if _, err := client.Process(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processing job %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&process, "process", true, "Trigger processing after the retry")
	return cmd
}

func printJob(out io.Writer, job *api.Job) {
	fmt.Fprintf(out, "Job %s: %s\n", job.ID, job.Name)
	fmt.Fprintf(out, "  Status:   %s\n", job.Status)
	if job.Brief != "" {
		fmt.Fprintf(out, "  Brief:    %s\n", job.Brief)
	}
	if job.Lease != "" {
		fmt.Fprintf(out, "  Lease:    %s\n", job.Lease)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error:    %s\n", job.Error)
	}
	fmt.Fprintf(out, "  Progress: %s\n", formatCounts(job.Counts))
	if len(job.Assets) == 0 {
		return
	}
	rows := make([][]string, 0, len(job.Assets))
	for _, asset := range job.Assets {
		detail := asset.Error
		if detail == "" && len(asset.StageErrors) > 0 {
			detail = formatStageErrors(asset.StageErrors)
		}
		if detail == "" && asset.Language != "" {
			detail = "speech: " + asset.Language
		}
		rows = append(rows, []string{
			asset.ID,
			asset.Name,
			asset.Kind,
			asset.Status,
			strconv.Itoa(asset.Progress) + "%",
			strings.Join(asset.Completed, ","),
			detail,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Asset", "Name", "Kind", "Status", "Progress", "Stages", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func formatCounts(counts map[string]int) string {
	order := []string{"ready", "processing", "pending", "error"}
	parts := make([]string, 0, len(order))
	for _, status := range order {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func formatStageErrors(errs map[string]string) string {
	stages := make([]string, 0, len(errs))
	for stage := range errs {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		parts = append(parts, stage+": "+errs[stage])
	}
	return strings.Join(parts, "; ")
}
