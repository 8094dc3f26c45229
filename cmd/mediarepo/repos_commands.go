package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediarepo/internal/api"
	"mediarepo/internal/repo"
)

const commitTimeFormat = "2006-01-02 15:04"

func newReposCommand(ctx *commandContext) *cobra.Command {
	reposCmd := &cobra.Command{
		Use:     "repos",
		Aliases: []string{"repo"},
		Short:   "Browse and edit finished repositories",
	}
	reposCmd.AddCommand(newReposListCommand(ctx))
	reposCmd.AddCommand(newReposShowCommand(ctx))
	reposCmd.AddCommand(newReposLogCommand(ctx))
	reposCmd.AddCommand(newReposExportCommand(ctx))
	reposCmd.AddCommand(newReposAddFileCommand(ctx))
	reposCmd.AddCommand(newReposRenameCommand(ctx))
	reposCmd.AddCommand(newReposRemoveCommand(ctx))
	return reposCmd
}

func newReposListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSource(cmd, func(src source) error {
				repos, err := src.ListRepos(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, repos)
				}
				if len(repos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No repositories")
					return nil
				}
				rows := make([][]string, 0, len(repos))
				for _, r := range repos {
					rows = append(rows, []string{
						r.ID,
						r.Name,
						strconv.Itoa(r.FileCount),
						strconv.Itoa(r.CommitCount),
						r.Updated.Local().Format(commitTimeFormat),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Files", "Commits", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReposShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <repo-id>",
		Short: "Print a repository's file tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSource(cmd, func(src source) error {
				r, err := src.GetRepo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, r)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", r.Name, r.ID)
				if r.Brief != "" {
					fmt.Fprintf(out, "%s\n", r.Brief)
				}
				fmt.Fprintln(out)
				printTree(out, r.FileTree, "")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReposLogCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "log <repo-id>",
		Short: "Show a repository's commit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSource(cmd, func(src source) error {
				r, err := src.GetRepo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(r.Commits))
				for _, c := range r.Commits {
					rows = append(rows, []string{
						c.ID,
						c.Timestamp.Local().Format(commitTimeFormat),
						c.Author,
						c.Message,
						strings.Join(c.Hashtags, " "),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Commit", "When", "Author", "Message", "Tags"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
}

func newReposExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <repo-id>",
		Short: "Export a repository document as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSource(cmd, func(src source) error {
				data, err := src.ExportRepo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
					return fmt.Errorf("create export directory: %w", err)
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", args[0], output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newReposAddFileCommand(ctx *commandContext) *cobra.Command {
	var message string
	var name string

	cmd := &cobra.Command{
		Use:   "add-file <repo-id> <folder> <local-file>",
		Short: "Add a text file to an unlocked folder",
		Long:  "Add a text file to an unlocked folder. <folder> is a node id or a path relative to the repository root (\"/\" for the root).",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[2], err)
			}
			content := string(data)
			if name == "" {
				name = filepath.Base(args[2])
			}
			return ctx.withDaemon(func(client *api.Client) error {
				parent, err := resolveNode(cmd, client, args[0], args[1])
				if err != nil {
					return err
				}
				commit, err := client.AddNode(cmd.Context(), args[0], api.NodeRequest{
					ParentID: parent.ID,
					Name:     name,
					Content:  &content,
					Message:  message,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Committed %s: %s\n", commit.ID, commit.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	cmd.Flags().StringVar(&name, "name", "", "File name in the repository (defaults to the local name)")
	return cmd
}

func newReposRenameCommand(ctx *commandContext) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "rename <repo-id> <node> <new-name>",
		Short: "Rename a file or folder",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *api.Client) error {
				node, err := resolveNode(cmd, client, args[0], args[1])
				if err != nil {
					return err
				}
				commit, err := client.EditNode(cmd.Context(), args[0], node.ID, api.NodeRequest{Name: args[2], Message: message})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Committed %s: %s\n", commit.ID, commit.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	return cmd
}

func newReposRemoveCommand(ctx *commandContext) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "rm-node <repo-id> <node>",
		Short: "Delete a file or folder and everything under it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *api.Client) error {
				node, err := resolveNode(cmd, client, args[0], args[1])
				if err != nil {
					return err
				}
				commit, err := client.DeleteNode(cmd.Context(), args[0], node.ID, message)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Committed %s: %s\n", commit.ID, commit.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	return cmd
}

// resolveNode accepts a node id or a root-relative path.
func resolveNode(cmd *cobra.Command, client *api.Client, repoID, ref string) (*repo.Node, error) {
	r, err := client.GetRepo(cmd.Context(), repoID)
	if err != nil {
		return nil, err
	}
	if node := repo.Find(r.FileTree, ref); node != nil {
		return node, nil
	}
	if node := repo.FindPath(r.FileTree, ref); node != nil {
		return node, nil
	}
	return nil, fmt.Errorf("no node %q in repository %s", ref, repoID)
}

func printTree(out io.Writer, node *repo.Node, indent string) {
	for _, child := range node.Children {
		label := child.Name
		if child.IsFolder() {
			label += "/"
		}
		if child.Locked {
			label += " [locked]"
		}
		fmt.Fprintf(out, "%s%s\n", indent, label)
		if child.IsFolder() {
			printTree(out, child, indent+"  ")
		}
	}
}
