package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/docstudio/internal/config"
	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway/gatewaytest"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

type cliHarness struct {
	baseURL      string
	databasePath string
	backend      *gatewaytest.Backend
}

func newCLIHarness(testContext *testing.T) *cliHarness {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	backend := gatewaytest.NewBackend()
	backend.SeedProject(
		documents.Project{ID: "p1", Title: "Launch Plan", Doctype: documents.DoctypeWord},
		documents.WordDocument{
			Title: "Launch Plan",
			Blocks: []documents.Block{
				{Type: documents.BlockTypeHeading, Level: 1, Text: "Goals"},
				{Type: documents.BlockTypeParagraph, Text: "Ship"},
				{Type: documents.BlockTypeHeading, Level: 1, Text: "Risks"},
			},
		},
	)
	upstream := backend.Start(testContext)
	return &cliHarness{
		baseURL:      upstream.URL,
		databasePath: filepath.Join(testContext.TempDir(), "state", "docstudio.db"),
		backend:      backend,
	}
}

func (h *cliHarness) run(testContext *testing.T, stdin string, args ...string) (string, error) {
	testContext.Helper()
	var stdout bytes.Buffer
	rootCmd := newRootCommand(config.NewViper(), &stdout, strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{
		"--api-base-url", h.baseURL,
		"--database-path", h.databasePath,
		"--log-level", "error",
		"--rate-limit", "0",
	}, args...))
	err := rootCmd.Execute()
	return stdout.String(), err
}

func (h *cliHarness) mustRun(testContext *testing.T, args ...string) string {
	testContext.Helper()
	output, err := h.run(testContext, "", args...)
	if err != nil {
		testContext.Fatalf("docstudio %s failed: %v", strings.Join(args, " "), err)
	}
	return output
}

func decodeOutput(testContext *testing.T, output string, target any) {
	testContext.Helper()
	if err := json.Unmarshal([]byte(output), target); err != nil {
		testContext.Fatalf("failed to decode output %q: %v", output, err)
	}
}

func TestSessionPersistsAcrossInvocations(testContext *testing.T) {
	harness := newCLIHarness(testContext)

	output, err := harness.run(testContext, "secret-password\n", "login", "--email", " writer@example.com ")
	if err != nil {
		testContext.Fatalf("login failed: %v", err)
	}
	var loggedIn map[string]any
	decodeOutput(testContext, output, &loggedIn)
	if loggedIn["user_id"] != gatewaytest.UserID {
		testContext.Fatalf("unexpected login output %v", loggedIn)
	}
	if _, leaked := loggedIn["access_token"]; leaked {
		testContext.Fatalf("access token must not be printed")
	}

	var identity map[string]any
	decodeOutput(testContext, harness.mustRun(testContext, "whoami"), &identity)
	if identity["email"] != "writer@example.com" {
		testContext.Fatalf("expected stored identity, got %v", identity)
	}

	var projects []documents.Project
	decodeOutput(testContext, harness.mustRun(testContext, "projects"), &projects)
	if len(projects) != 1 || projects[0].ID != "p1" {
		testContext.Fatalf("unexpected projects %+v", projects)
	}

	harness.mustRun(testContext, "logout")
	decodeOutput(testContext, harness.mustRun(testContext, "whoami"), &identity)
	if identity["authenticated"] != false {
		testContext.Fatalf("expected logged out identity, got %v", identity)
	}

	_, err = harness.run(testContext, "", "projects")
	if !errors.Is(err, gateway.ErrUnauthorized) {
		testContext.Fatalf("expected unauthorized after logout, got %v", err)
	}
}

func TestWorkspaceCommands(testContext *testing.T) {
	harness := newCLIHarness(testContext)
	harness.mustRun(testContext, "login", "--email", "writer@example.com", "--password", "secret-password")

	var summary versionSummary
	decodeOutput(testContext, harness.mustRun(testContext, "open", "p1"), &summary)
	if summary.SelectedVersion != "p1-v1" || summary.State != "content_ready" {
		testContext.Fatalf("unexpected open summary %+v", summary)
	}

	var section struct {
		Title    string `json:"title"`
		Feedback struct {
			Liked   *bool   `json:"liked"`
			Comment *string `json:"comment"`
		} `json:"feedback"`
	}
	decodeOutput(testContext, harness.mustRun(testContext, "like", "p1", "1"), &section)
	if section.Title != "Risks" || section.Feedback.Liked == nil || !*section.Feedback.Liked {
		testContext.Fatalf("unexpected like output %+v", section)
	}
	decodeOutput(testContext, harness.mustRun(testContext, "comment", "p1", "1", "needs", "numbers"), &section)
	if section.Feedback.Comment == nil || *section.Feedback.Comment != "needs numbers" {
		testContext.Fatalf("unexpected comment output %+v", section)
	}
	if section.Feedback.Liked == nil || !*section.Feedback.Liked {
		testContext.Fatalf("expected comment to preserve the like")
	}

	var refined struct {
		SelectedVersion struct {
			ID string `json:"id"`
		} `json:"selected_version"`
	}
	decodeOutput(testContext, harness.mustRun(testContext, "refine", "p1", "0", "--prompt", "shorter"), &refined)
	if refined.SelectedVersion.ID != "p1-v2" {
		testContext.Fatalf("expected refined version to be selected, got %+v", refined)
	}

	destination := testContext.TempDir()
	var downloaded downloadResult
	decodeOutput(testContext, harness.mustRun(testContext, "download", "p1", "--version", "p1-v1", "-f", destination), &downloaded)
	if downloaded.Path != filepath.Join(destination, "Launch Plan.docx") {
		testContext.Fatalf("unexpected download path %q", downloaded.Path)
	}
	data, err := os.ReadFile(downloaded.Path)
	if err != nil {
		testContext.Fatalf("failed to read download: %v", err)
	}
	if string(data) != "docx:p1-v1" {
		testContext.Fatalf("unexpected download body %q", data)
	}
}

func TestOutlineCommands(testContext *testing.T) {
	harness := newCLIHarness(testContext)
	harness.mustRun(testContext, "login", "--email", "writer@example.com", "--password", "secret-password")

	var suggested suggestion
	decodeOutput(testContext, harness.mustRun(testContext, "suggest", "--topic", "Solar power", "--doctype", "ppt"), &suggested)
	if suggested.DocType != "ppt" || len(suggested.Entries) != 3 || suggested.Entries[0] != "Introduction" {
		testContext.Fatalf("unexpected suggestion %+v", suggested)
	}

	rawPath := filepath.Join(testContext.TempDir(), "outline.json")
	if err := os.WriteFile(rawPath, []byte(`{"sections": ["Overview", "", "Budget"]}`), 0o600); err != nil {
		testContext.Fatalf("failed to write outline: %v", err)
	}
	var created struct {
		Project   documents.Project `json:"project"`
		Workspace struct {
			State    string `json:"state"`
			Sections []struct {
				Title string `json:"title"`
			} `json:"sections"`
		} `json:"workspace"`
	}
	decodeOutput(testContext, harness.mustRun(testContext, "new", "--topic", "Solar power", "--raw-file", rawPath), &created)
	if created.Project.ID == "" || created.Workspace.State != "content_ready" {
		testContext.Fatalf("unexpected created project %+v", created)
	}
	if len(created.Workspace.Sections) == 0 {
		testContext.Fatalf("expected the new project to be opened with sections")
	}

	if _, err := harness.run(testContext, "", "new", "--topic", " "); err == nil {
		testContext.Fatalf("expected a blank topic to be rejected")
	}
	if got := harness.backend.RequestCount("POST", "/generate-word-json"); got != 1 {
		testContext.Fatalf("expected exactly one generation request, got %d", got)
	}
}

func TestYAMLOutput(testContext *testing.T) {
	harness := newCLIHarness(testContext)
	harness.mustRun(testContext, "login", "--email", "writer@example.com", "--password", "secret-password")

	output := harness.mustRun(testContext, "projects", "-o", "yaml")
	var projects []map[string]any
	if err := yaml.Unmarshal([]byte(output), &projects); err != nil {
		testContext.Fatalf("expected yaml output, got %q: %v", output, err)
	}
	if len(projects) != 1 || projects[0]["id"] != "p1" {
		testContext.Fatalf("unexpected yaml projects %v", projects)
	}
}

func TestRejectsUnknownOutputFormat(testContext *testing.T) {
	harness := newCLIHarness(testContext)
	if _, err := harness.run(testContext, "", "whoami", "-o", "xml"); err == nil {
		testContext.Fatalf("expected unsupported output format to fail")
	}
}

func TestParseIndex(testContext *testing.T) {
	if index, err := parseIndex(" 2 "); err != nil || index != 2 {
		testContext.Fatalf("expected 2, got %d (%v)", index, err)
	}
	for _, raw := range []string{"-1", "two", ""} {
		if _, err := parseIndex(raw); err == nil {
			testContext.Fatalf("expected %q to be rejected", raw)
		}
	}
}
