package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mediarepo/internal/api"
	"mediarepo/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *api.Client) error {
				query := api.LogQuery{Limit: lines, Tail: true, JobID: jobID}
				if query.Limit <= 0 {
					query.Limit = 200
				}
				printed := false
				for {
					resp, err := client.Logs(cmd.Context(), query)
					if err != nil {
						if cmd.Context().Err() != nil {
							return nil
						}
						return err
					}
					for _, evt := range resp.Events {
						fmt.Fprintln(cmd.OutOrStdout(), formatLogEvent(evt))
						printed = true
					}
					if !follow {
						if !printed {
							fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
						}
						return nil
					}
					query.Since = resp.Next
					query.Limit = 200
					query.Tail = false
					query.Follow = true
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent lines to show")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines for this job")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{evt.Timestamp.Local().Format("2006-01-02 15:04:05"), level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, "["+component+"]")
	}
	if subject := logSubject(evt); subject != "" {
		parts = append(parts, subject)
	}
	line := strings.Join(parts, " ")
	if msg := strings.TrimSpace(evt.Message); msg != "" {
		line += " - " + msg
	}
	if len(evt.Fields) == 0 {
		return line
	}
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(line)
	for _, key := range keys {
		if strings.TrimSpace(evt.Fields[key]) == "" {
			continue
		}
		b.WriteString("\n    - ")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(evt.Fields[key])
	}
	return b.String()
}

func logSubject(evt logging.LogEvent) string {
	job := strings.TrimSpace(evt.JobID)
	stage := strings.TrimSpace(evt.Stage)
	switch {
	case job != "" && stage != "":
		return fmt.Sprintf("job %s (%s)", shortID(job), stage)
	case job != "":
		return "job " + shortID(job)
	default:
		return stage
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
