package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/outline"
	"github.com/MarcoPoloResearchLab/docstudio/internal/session"
	"github.com/MarcoPoloResearchLab/docstudio/internal/workspace"
	"github.com/spf13/cobra"
)

type credentialFlags struct {
	email    string
	password string
}

func (c *cli) bindCredentialFlags(cmd *cobra.Command, flags *credentialFlags) {
	cmd.Flags().StringVar(&flags.email, "email", "", "Account email")
	cmd.Flags().StringVar(&flags.password, "password", "", "Account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
}

// resolvePassword falls back to the first line of stdin.
func (c *cli) resolvePassword(flags *credentialFlags) (string, error) {
	if flags.password != "" {
		return flags.password, nil
	}
	if c.stdin == nil {
		return "", nil
	}
	line, err := bufio.NewReader(c.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) loginCommand() *cobra.Command {
	flags := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := c.resolvePassword(flags)
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				return rt.app.Login(ctx, flags.email, password)
			})
		},
	}
	c.bindCredentialFlags(cmd, flags)
	return cmd
}

func (c *cli) signupCommand() *cobra.Command {
	flags := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := c.resolvePassword(flags)
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				return rt.app.Signup(ctx, flags.email, password)
			})
		},
	}
	c.bindCredentialFlags(cmd, flags)
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				if err := rt.app.Logout(ctx); err != nil {
					return nil, err
				}
				return map[string]bool{"authenticated": false}, nil
			})
		},
	}
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				current, err := rt.app.CurrentSession(ctx)
				if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrSessionExpired) {
					return map[string]bool{"authenticated": false}, nil
				}
				if err != nil {
					return nil, err
				}
				return current, nil
			})
		},
	}
}

func (c *cli) projectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List your projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				return rt.app.ListProjects(ctx)
			})
		},
	}
}

type versionSummary struct {
	State           workspace.State     `json:"state" yaml:"state"`
	Project         *documents.Project  `json:"project,omitempty" yaml:"project,omitempty"`
	Versions        []documents.Version `json:"versions" yaml:"versions"`
	SelectedVersion string              `json:"selected_version,omitempty" yaml:"selected_version,omitempty"`
}

func summarize(view workspace.View) versionSummary {
	summary := versionSummary{State: view.State, Project: view.Project, Versions: view.Versions}
	if view.SelectedVersion != nil {
		summary.SelectedVersion = view.SelectedVersion.ID
	}
	return summary
}

func (c *cli) openCommand() *cobra.Command {
	var versionID string
	cmd := &cobra.Command{
		Use:   "open PROJECT_ID",
		Short: "List a project's versions and select one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				if err := selectTarget(ctx, rt.app, args[0], versionID); err != nil {
					return nil, err
				}
				return summarize(rt.app.View()), nil
			})
		},
	}
	bindVersionFlag(cmd, &versionID)
	return cmd
}

func (c *cli) showCommand() *cobra.Command {
	var versionID string
	cmd := &cobra.Command{
		Use:   "show PROJECT_ID",
		Short: "Show the sections or slides of a version with their feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				if err := selectTarget(ctx, rt.app, args[0], versionID); err != nil {
					return nil, err
				}
				return rt.app.View(), nil
			})
		},
	}
	bindVersionFlag(cmd, &versionID)
	return cmd
}

func (c *cli) feedbackCommand(name, short string) *cobra.Command {
	var versionID string
	cmd := &cobra.Command{
		Use:   name + " PROJECT_ID INDEX",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				if err := selectTarget(ctx, rt.app, args[0], versionID); err != nil {
					return nil, err
				}
				apply := rt.app.Like
				if name == "dislike" {
					apply = rt.app.Dislike
				}
				if err := apply(ctx, index); err != nil {
					return nil, err
				}
				return sectionAt(rt.app.View(), index), nil
			})
		},
	}
	bindVersionFlag(cmd, &versionID)
	return cmd
}

func (c *cli) commentCommand() *cobra.Command {
	var versionID string
	cmd := &cobra.Command{
		Use:   "comment PROJECT_ID INDEX TEXT...",
		Short: "Comment on a section or slide",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			text := strings.Join(args[2:], " ")
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				if err := selectTarget(ctx, rt.app, args[0], versionID); err != nil {
					return nil, err
				}
				if err := rt.app.Comment(ctx, index, text); err != nil {
					return nil, err
				}
				return sectionAt(rt.app.View(), index), nil
			})
		},
	}
	bindVersionFlag(cmd, &versionID)
	return cmd
}

func (c *cli) refineCommand() *cobra.Command {
	var versionID, prompt string
	cmd := &cobra.Command{
		Use:   "refine PROJECT_ID INDEX",
		Short: "Regenerate a section or slide into a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				if err := selectTarget(ctx, rt.app, args[0], versionID); err != nil {
					return nil, err
				}
				if err := rt.app.Refine(ctx, index, prompt); err != nil {
					return nil, err
				}
				return rt.app.View(), nil
			})
		},
	}
	bindVersionFlag(cmd, &versionID)
	cmd.Flags().StringVar(&prompt, "prompt", "", "Instruction for the refinement")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

type downloadResult struct {
	Path  string `json:"path" yaml:"path"`
	Bytes int    `json:"bytes" yaml:"bytes"`
}

func (c *cli) downloadCommand() *cobra.Command {
	var versionID, outputPath string
	cmd := &cobra.Command{
		Use:   "download PROJECT_ID",
		Short: "Export a version as .docx or .pptx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				if err := selectTarget(ctx, rt.app, args[0], versionID); err != nil {
					return nil, err
				}
				exported, err := rt.app.Download(ctx)
				if err != nil {
					return nil, err
				}
				path := outputPath
				if path == "" {
					path = exported.Filename
				} else if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					path = filepath.Join(path, exported.Filename)
				}
				if err := os.WriteFile(path, exported.Data, 0o644); err != nil {
					return nil, fmt.Errorf("write %s: %w", path, err)
				}
				return downloadResult{Path: path, Bytes: len(exported.Data)}, nil
			})
		},
	}
	bindVersionFlag(cmd, &versionID)
	cmd.Flags().StringVarP(&outputPath, "file", "f", "", "Destination file or directory (defaults to <title>.<ext>)")
	return cmd
}

type draftFlags struct {
	topic   string
	doctype string
	entries []string
	rawFile string
}

func bindDraftFlags(cmd *cobra.Command, flags *draftFlags) {
	cmd.Flags().StringVar(&flags.topic, "topic", "", "Main topic")
	cmd.Flags().StringVar(&flags.doctype, "doctype", "word", "Document type (word, ppt)")
	_ = cmd.MarkFlagRequired("topic")
}

func (f *draftFlags) draft() (*outline.Draft, error) {
	doctype, err := documents.ParseDoctype(f.doctype)
	if err != nil {
		return nil, err
	}
	draft := outline.NewDraft()
	draft.Topic = f.topic
	draft.Doctype = doctype
	if len(f.entries) > 0 {
		draft.SetEntries(f.entries)
	}
	if f.rawFile != "" {
		raw, err := os.ReadFile(f.rawFile)
		if err != nil {
			return nil, err
		}
		if err := draft.SwitchMode(outline.ModeRaw); err != nil {
			return nil, err
		}
		draft.SetRaw(string(raw))
	}
	return draft, nil
}

type suggestion struct {
	DocType string   `json:"doc_type" yaml:"doc_type"`
	Entries []string `json:"entries" yaml:"entries"`
}

func (c *cli) suggestCommand() *cobra.Command {
	flags := &draftFlags{}
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest section headings or slide titles for a topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := flags.draft()
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				if err := rt.app.SuggestOutline(ctx, draft); err != nil {
					return nil, err
				}
				return suggestion{DocType: draft.Doctype.OutlineName(), Entries: draft.Entries()}, nil
			})
		},
	}
	bindDraftFlags(cmd, flags)
	return cmd
}

type createdProject struct {
	Project   documents.Project `json:"project" yaml:"project"`
	Workspace workspace.View    `json:"workspace" yaml:"workspace"`
}

func (c *cli) newCommand() *cobra.Command {
	flags := &draftFlags{}
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a new project from an outline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := flags.draft()
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) (any, error) {
				project, err := rt.app.CreateProject(ctx, draft)
				if err != nil {
					return nil, err
				}
				return createdProject{Project: project, Workspace: rt.app.View()}, nil
			})
		},
	}
	bindDraftFlags(cmd, flags)
	cmd.Flags().StringArrayVar(&flags.entries, "entry", nil, "Section heading or slide title (repeatable)")
	cmd.Flags().StringVar(&flags.rawFile, "raw-file", "", "JSON outline file ({\"sections\": [...]} or {\"slides\": [...]})")
	return cmd
}

func bindVersionFlag(cmd *cobra.Command, versionID *string) {
	cmd.Flags().StringVar(versionID, "version", "", "Version id (defaults to the latest version)")
}

// selectTarget opens the project, which selects its latest version, then switches to versionID when given.
func selectTarget(ctx context.Context, app *workspace.App, projectID, versionID string) error {
	if err := app.OpenProject(ctx, projectID); err != nil {
		return err
	}
	if versionID == "" {
		return nil
	}
	return app.SelectVersion(ctx, versionID)
}

func parseIndex(raw string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || index < 0 {
		return 0, fmt.Errorf("index must be a non-negative integer, got %q", raw)
	}
	return index, nil
}

func sectionAt(view workspace.View, index int) any {
	if index < len(view.Sections) {
		return view.Sections[index]
	}
	return view
}
