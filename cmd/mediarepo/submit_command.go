package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mediarepo/internal/api"
	"mediarepo/internal/ingest"
	"mediarepo/internal/workflow"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var name string
	var brief string
	var kind string

	cmd := &cobra.Command{
		Use:   "submit <file>...",
		Short: "Submit media files as a new ingestion job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildSubmitRequest(name, brief, kind, args)
			if err != nil {
				return err
			}
			return ctx.withDaemon(func(client *api.Client) error {
				jobID, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s (%d assets)\n", jobID, len(req.Assets))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Job name (defaults to the first file's display name)")
	cmd.Flags().StringVarP(&brief, "brief", "b", "", "Free-text brief stored with the repository")
	cmd.Flags().StringVar(&kind, "kind", "", "Force the asset kind (video, audio, image)")
	return cmd
}

func buildSubmitRequest(name, brief, kind string, paths []string) (workflow.SubmitRequest, error) {
	if kind != "" {
		parsed, err := ingest.ParseKind(kind)
		if err != nil {
			return workflow.SubmitRequest{}, err
		}
		kind = string(parsed)
	}
	req := workflow.SubmitRequest{
		Name:  strings.TrimSpace(name),
		Brief: strings.TrimSpace(brief),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return workflow.SubmitRequest{}, fmt.Errorf("resolve %s: %w", p, err)
		}
		req.Assets = append(req.Assets, workflow.AssetInput{Path: abs, Kind: kind})
	}
	if req.Name == "" {
		req.Name = ingest.DisplayName(paths[0])
	}
	return req, nil
}
