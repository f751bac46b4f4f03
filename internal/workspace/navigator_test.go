package workspace

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/feedback"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway/gatewaytest"
)

func openProject(testContext *testing.T, navigator *Navigator) {
	testContext.Helper()
	if err := navigator.OpenProject(context.Background(), planProject); err != nil {
		testContext.Fatalf("open project failed: %v", err)
	}
}

func TestOpenProjectSelectsLatestVersion(testContext *testing.T) {
	backend := gatewaytest.NewBackend()
	versions := backend.SeedProject(planProject, planDocument, planDocument, planDocument)
	liked := true
	backend.SeedFeedback(versions[2].ID, gatewaytest.Feedback{SectionTitle: "Goals", Liked: &liked})
	app, recorder := newTestApp(testContext, backend, loggedInStore(testContext))

	if err := app.OpenProject(context.Background(), planProject.ID); err != nil {
		testContext.Fatalf("open project failed: %v", err)
	}

	view := app.View()
	if view.State != StateContentReady {
		testContext.Fatalf("expected content_ready, got %s", view.State)
	}
	if view.SelectedVersion == nil || view.SelectedVersion.VersionNumber != 3 {
		testContext.Fatalf("expected version 3 to be selected, got %+v", view.SelectedVersion)
	}
	if len(view.Versions) != 3 {
		testContext.Fatalf("expected 3 versions, got %d", len(view.Versions))
	}
	if view.Word == nil || view.Presentation != nil {
		testContext.Fatalf("expected only Word content, got word=%v presentation=%v", view.Word, view.Presentation)
	}

	if len(view.Sections) != 3 {
		testContext.Fatalf("expected 3 sections, got %d", len(view.Sections))
	}
	if untitled := view.Sections[0]; untitled.Title != "Section 1" || untitled.Heading != nil {
		testContext.Fatalf("unexpected leading section %+v", untitled)
	}
	goals := view.Sections[1]
	if goals.Title != "Goals" {
		testContext.Fatalf("unexpected second section title %q", goals.Title)
	}
	if !slices.Equal(goals.Paragraphs, []documents.Block{{Type: documents.BlockTypeParagraph, Text: "Grow"}}) {
		testContext.Fatalf("unexpected Goals paragraphs %+v", goals.Paragraphs)
	}
	if goals.Feedback.Liked == nil || !*goals.Feedback.Liked {
		testContext.Fatalf("expected Goals to carry the seeded like")
	}
	if view.Sections[2].Title != "Risks" {
		testContext.Fatalf("unexpected third section title %q", view.Sections[2].Title)
	}

	want := []State{StateVersionsLoading, StateVersionSelected, StateContentLoading, StateContentReady}
	if states := recorder.states(); !slices.Equal(states, want) {
		testContext.Fatalf("unexpected state transitions %v", states)
	}
}

func TestOpenProjectWithoutVersionsStaysLoading(testContext *testing.T) {
	backend := gatewaytest.NewBackend()
	backend.SeedProject(planProject)
	app, _ := newTestApp(testContext, backend, loggedInStore(testContext))

	if err := app.OpenProject(context.Background(), planProject.ID); err != nil {
		testContext.Fatalf("open project failed: %v", err)
	}

	view := app.View()
	if view.State != StateVersionsLoading {
		testContext.Fatalf("expected versions_loading, got %s", view.State)
	}
	if view.Versions == nil || len(view.Versions) != 0 {
		testContext.Fatalf("expected an empty non-nil version list, got %#v", view.Versions)
	}
	if view.SelectedVersion != nil || len(view.Sections) != 0 {
		testContext.Fatalf("expected nothing selected, got %+v", view)
	}
	if count := backend.RequestCount("GET", "/projects/p1/versions"); count != 1 {
		testContext.Fatalf("expected one versions request, got %d", count)
	}
}

func TestOpenUnknownProject(testContext *testing.T) {
	backend := gatewaytest.NewBackend()
	app, _ := newTestApp(testContext, backend, loggedInStore(testContext))

	if err := app.OpenProject(context.Background(), "missing"); !errors.Is(err, ErrUnknownProject) {
		testContext.Fatalf("expected ErrUnknownProject, got %v", err)
	}
	if state := app.View().State; state != StateClosed {
		testContext.Fatalf("expected closed, got %s", state)
	}
}

func TestSlidesViewUsesSlideTitles(testContext *testing.T) {
	backend := gatewaytest.NewBackend()
	backend.SeedProject(deckProject, deck)
	app, _ := newTestApp(testContext, backend, loggedInStore(testContext))

	if err := app.OpenProject(context.Background(), deckProject.ID); err != nil {
		testContext.Fatalf("open project failed: %v", err)
	}

	view := app.View()
	if view.Presentation == nil || view.Word != nil {
		testContext.Fatalf("expected only presentation content")
	}
	if len(view.Sections) != 2 {
		testContext.Fatalf("expected 2 slides, got %d", len(view.Sections))
	}
	if hook := view.Sections[0]; hook.Title != "Hook" || !slices.Equal(hook.Bullets, []string{"Why now"}) {
		testContext.Fatalf("unexpected first slide %+v", hook)
	}
	if title := view.Sections[1].Title; title != "Slide 2" {
		testContext.Fatalf("expected fallback slide title, got %q", title)
	}
}

func TestStaleSelectionIsDiscarded(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 2)
	navigator := newScriptedNavigator(testContext, backend)
	ctx := context.Background()

	openProject(testContext, navigator)
	if selected := navigator.View().SelectedVersion.ID; selected != "v2" {
		testContext.Fatalf("expected v2 to be selected, got %s", selected)
	}

	gate := make(chan struct{})
	backend.gates["v1"] = gate
	result := make(chan error, 1)
	go func() {
		result <- navigator.SelectVersion(ctx, "v1")
	}()
	select {
	case <-backend.started:
	case <-time.After(2 * time.Second):
		testContext.Fatalf("selection of v1 never reached the backend")
	}

	if err := navigator.SelectVersion(ctx, "v2"); err != nil {
		testContext.Fatalf("select v2 failed: %v", err)
	}
	close(gate)

	select {
	case err := <-result:
		if !errors.Is(err, ErrStaleSelection) {
			testContext.Fatalf("expected ErrStaleSelection, got %v", err)
		}
	case <-time.After(2 * time.Second):
		testContext.Fatalf("stale selection never returned")
	}

	view := navigator.View()
	if view.State != StateContentReady || view.SelectedVersion.ID != "v2" {
		testContext.Fatalf("expected v2 content to stay, got %s/%s", view.State, view.SelectedVersion.ID)
	}
	if _, versionID := navigator.feedback.Loaded(); versionID != "v2" {
		testContext.Fatalf("expected feedback for v2, got %s", versionID)
	}
}

func TestOpeningAnotherProjectSupersedesSelection(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 1)
	navigator := newScriptedNavigator(testContext, backend)

	gate := make(chan struct{})
	backend.gates["v1"] = gate
	result := make(chan error, 1)
	go func() {
		result <- navigator.OpenProject(context.Background(), planProject)
	}()
	<-backend.started

	navigator.Close()
	close(gate)

	if err := <-result; !errors.Is(err, ErrStaleSelection) {
		testContext.Fatalf("expected ErrStaleSelection, got %v", err)
	}
	if state := navigator.State(); state != StateClosed {
		testContext.Fatalf("expected closed, got %s", state)
	}
	if project := navigator.View().Project; project != nil {
		testContext.Fatalf("expected no project, got %+v", project)
	}
}

func TestSelectVersionRejectsUnknownVersion(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 1)
	navigator := newScriptedNavigator(testContext, backend)

	if err := navigator.SelectVersion(context.Background(), "v1"); !errors.Is(err, ErrNoProject) {
		testContext.Fatalf("expected ErrNoProject, got %v", err)
	}

	openProject(testContext, navigator)
	if err := navigator.SelectVersion(context.Background(), "v7"); !errors.Is(err, ErrUnknownVersion) {
		testContext.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
	if state := navigator.State(); state != StateContentReady {
		testContext.Fatalf("expected content_ready, got %s", state)
	}
}

func TestSelectVersionWithMalformedContent(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 1)
	backend.configs["v1"] = []byte(`"not an object"`)
	navigator := newScriptedNavigator(testContext, backend)

	err := navigator.OpenProject(context.Background(), planProject)

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		testContext.Fatalf("expected a ServiceError, got %v", err)
	}
	if code := serviceErr.Code(); code != "workspace.select_version.decode_failed" {
		testContext.Fatalf("unexpected code %q", code)
	}
	if !errors.Is(err, documents.ErrMalformedContent) {
		testContext.Fatalf("expected ErrMalformedContent in the chain, got %v", err)
	}
	if state := navigator.State(); state != StateVersionSelected {
		testContext.Fatalf("expected version_selected, got %s", state)
	}
	if sections := navigator.View().Sections; len(sections) != 0 {
		testContext.Fatalf("expected no sections, got %+v", sections)
	}
}

func TestRefineSelectsCreatedVersion(testContext *testing.T) {
	backend := gatewaytest.NewBackend()
	backend.SeedProject(planProject, planDocument)
	app, _ := newTestApp(testContext, backend, loggedInStore(testContext))
	ctx := context.Background()
	if err := app.OpenProject(ctx, planProject.ID); err != nil {
		testContext.Fatalf("open project failed: %v", err)
	}

	if err := app.Refine(ctx, 1, "add numbers"); err != nil {
		testContext.Fatalf("refine failed: %v", err)
	}

	view := app.View()
	if view.State != StateContentReady || view.SelectedVersion.VersionNumber != 2 {
		testContext.Fatalf("expected version 2 content, got %s/%d", view.State, view.SelectedVersion.VersionNumber)
	}
	if len(view.Versions) != 2 {
		testContext.Fatalf("expected 2 versions, got %d", len(view.Versions))
	}
	goals := view.Sections[1]
	if goals.Title != "Goals" || goals.Paragraphs[0].Text != "Refined: add numbers" {
		testContext.Fatalf("unexpected refined section %+v", goals)
	}
}

func TestRefineFallsBackToLatestVersion(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 2)
	navigator := newScriptedNavigator(testContext, backend)
	openProject(testContext, navigator)

	if err := navigator.Refine(context.Background(), "Goals", "shorter"); err != nil {
		testContext.Fatalf("refine failed: %v", err)
	}

	selected := navigator.View().SelectedVersion
	if selected.ID != "v9" || selected.VersionNumber != 3 {
		testContext.Fatalf("expected the newest version to be selected, got %+v", selected)
	}
}

func TestRefineRejectsEmptyPromptLocally(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 1)
	navigator := newScriptedNavigator(testContext, backend)
	openProject(testContext, navigator)

	if err := navigator.Refine(context.Background(), "Goals", "  "); !errors.Is(err, ErrEmptyPrompt) {
		testContext.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if count := backend.callCount("refine"); count != 0 {
		testContext.Fatalf("expected no refine calls, got %d", count)
	}
}

func TestRefineRequiresLoadedContent(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 1)
	navigator := newScriptedNavigator(testContext, backend)

	if err := navigator.Refine(context.Background(), "Goals", "shorter"); !errors.Is(err, ErrNoProject) {
		testContext.Fatalf("expected ErrNoProject, got %v", err)
	}
	if count := backend.callCount("refine"); count != 0 {
		testContext.Fatalf("expected no refine calls, got %d", count)
	}
}

func TestRefineFailureLeavesStateUnchanged(testContext *testing.T) {
	backend := gatewaytest.NewBackend()
	versions := backend.SeedProject(planProject, planDocument)
	app, _ := newTestApp(testContext, backend, loggedInStore(testContext))
	ctx := context.Background()
	if err := app.OpenProject(ctx, planProject.ID); err != nil {
		testContext.Fatalf("open project failed: %v", err)
	}
	before := app.View()

	backend.FailNext("/projects/p1/versions/"+versions[0].ID+"/refine", 500)
	err := app.Refine(ctx, 1, "add numbers")

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		testContext.Fatalf("expected a ServiceError, got %v", err)
	}
	if code := serviceErr.Code(); code != "workspace.refine.request_failed" {
		testContext.Fatalf("unexpected code %q", code)
	}
	if after := app.View(); !reflect.DeepEqual(before, after) {
		testContext.Fatalf("expected view to be unchanged, got %+v", after)
	}
}

func TestDownloadNamesFileAfterProject(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 1)
	navigator := newScriptedNavigator(testContext, backend)

	if _, err := navigator.Download(context.Background()); !errors.Is(err, ErrNoProject) {
		testContext.Fatalf("expected ErrNoProject, got %v", err)
	}

	openProject(testContext, navigator)
	file, err := navigator.Download(context.Background())
	if err != nil {
		testContext.Fatalf("download failed: %v", err)
	}
	if file.Filename != "Plan.docx" || !bytes.Equal(file.Data, []byte("file")) {
		testContext.Fatalf("unexpected download %q (%q)", file.Filename, file.Data)
	}

	testCases := []struct {
		project documents.Project
		want    string
	}{
		{project: documents.Project{Title: "a/b", Doctype: documents.DoctypeSlides}, want: "a_b.pptx"},
		{project: documents.Project{ID: "p9", Doctype: documents.DoctypeWord}, want: "p9.docx"},
	}
	for _, testCase := range testCases {
		if got := downloadFilename(testCase.project); got != testCase.want {
			testContext.Fatalf("downloadFilename(%+v) = %q, want %q", testCase.project, got, testCase.want)
		}
	}
}

func TestDuplicateTitlesShareFeedback(testContext *testing.T) {
	backend := gatewaytest.NewBackend()
	document := documents.WordDocument{Blocks: []documents.Block{
		{Type: documents.BlockTypeHeading, Text: "Notes"},
		{Type: documents.BlockTypeHeading, Text: "Notes"},
	}}
	backend.SeedProject(planProject, document)
	app, _ := newTestApp(testContext, backend, loggedInStore(testContext))
	ctx := context.Background()
	if err := app.OpenProject(ctx, planProject.ID); err != nil {
		testContext.Fatalf("open project failed: %v", err)
	}

	if err := app.Like(ctx, 0); err != nil {
		testContext.Fatalf("like failed: %v", err)
	}

	view := app.View()
	if len(view.Sections) != 2 {
		testContext.Fatalf("expected 2 sections, got %d", len(view.Sections))
	}
	if liked := view.Sections[1].Feedback.Liked; liked == nil || !*liked {
		testContext.Fatalf("expected the second Notes section to share the like")
	}
}

func TestViewIsSnapshot(testContext *testing.T) {
	backend := newScriptedBackend(testContext, planDocument, 1)
	navigator := newScriptedNavigator(testContext, backend)
	openProject(testContext, navigator)

	view := navigator.View()
	view.Word.Blocks[0].Text = "changed"
	view.Versions[0].ID = "changed"
	view.Sections[1].Paragraphs[0].Text = "changed"

	fresh := navigator.View()
	if fresh.Word.Blocks[0].Text != "Draft notice" {
		testContext.Fatalf("word content leaked: %q", fresh.Word.Blocks[0].Text)
	}
	if fresh.Versions[0].ID != "v1" {
		testContext.Fatalf("version list leaked: %q", fresh.Versions[0].ID)
	}
	if fresh.Sections[1].Paragraphs[0].Text != "Grow" {
		testContext.Fatalf("section paragraphs leaked: %q", fresh.Sections[1].Paragraphs[0].Text)
	}
}

func TestNewNavigatorRequiresDependencies(testContext *testing.T) {
	if _, err := NewNavigator(NavigatorConfig{}); !errors.Is(err, ErrInvalidConfig) {
		testContext.Fatalf("expected ErrInvalidConfig without dependencies, got %v", err)
	}

	backend := newScriptedBackend(testContext, planDocument, 1)
	if _, err := NewNavigator(NavigatorConfig{Backend: backend}); !errors.Is(err, ErrInvalidConfig) {
		testContext.Fatalf("expected ErrInvalidConfig without feedback, got %v", err)
	}
	if _, err := NewNavigator(NavigatorConfig{Backend: backend, Feedback: feedback.NewManager(backend, nil)}); err != nil {
		testContext.Fatalf("expected a valid navigator, got %v", err)
	}
}
