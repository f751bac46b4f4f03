package workspace

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/feedback"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway/gatewaytest"
	"github.com/MarcoPoloResearchLab/docstudio/internal/session"
)

var (
	planProject = documents.Project{ID: "p1", Title: "Plan", Doctype: documents.DoctypeWord}
	deckProject = documents.Project{ID: "p2", Title: "Pitch", Doctype: documents.DoctypeSlides}

	planDocument = documents.WordDocument{
		Title: "Plan",
		Blocks: []documents.Block{
			{Type: documents.BlockTypeParagraph, Text: "Draft notice"},
			{Type: documents.BlockTypeHeading, Level: 1, Text: "Goals"},
			{Type: documents.BlockTypeParagraph, Text: "Grow"},
			{Type: documents.BlockTypeHeading, Level: 1, Text: "Risks"},
		},
	}
	deck = documents.Presentation{
		Topic: "Pitch",
		Slides: []documents.Slide{
			{Title: "Hook", Bullets: []string{"Why now"}},
			{Bullets: []string{"Untitled"}},
		},
	}
)

func loggedInStore(testContext *testing.T) *session.MemoryStore {
	testContext.Helper()
	store := session.NewMemoryStore(nil)
	if err := store.Save(context.Background(), session.New(gatewaytest.UserID, "writer@example.com", gatewaytest.AccessToken)); err != nil {
		testContext.Fatalf("failed to seed session: %v", err)
	}
	return store
}

func newGatewayClient(testContext *testing.T, backend *gatewaytest.Backend, store session.Store) *gateway.Client {
	testContext.Helper()
	server := backend.Start(testContext)
	client, err := gateway.NewClient(gateway.Config{BaseURL: server.URL, Sessions: store})
	if err != nil {
		testContext.Fatalf("failed to build gateway client: %v", err)
	}
	return client
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) observe(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}

func (r *eventRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]State, 0, len(r.events))
	for _, event := range r.events {
		if event.Type == EventStateChanged {
			states = append(states, event.State)
		}
	}
	return states
}

func newTestApp(testContext *testing.T, backend *gatewaytest.Backend, store session.Store) (*App, *eventRecorder) {
	testContext.Helper()
	recorder := &eventRecorder{}
	app, err := NewApp(AppConfig{
		Gateway:  newGatewayClient(testContext, backend, store),
		Sessions: store,
		Observer: recorder.observe,
		Clock:    func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		testContext.Fatalf("failed to build app: %v", err)
	}
	return app, recorder
}

// scriptedBackend answers from fixed data and can hold GetVersion for chosen versions.
type scriptedBackend struct {
	mu       sync.Mutex
	versions []documents.Version
	configs  map[string]json.RawMessage
	gates    map[string]chan struct{}
	started  chan string
	refined  documents.Version
	calls    []string
}

func newScriptedBackend(testContext *testing.T, content any, count int) *scriptedBackend {
	testContext.Helper()
	encoded, err := json.Marshal(content)
	if err != nil {
		testContext.Fatalf("failed to encode content: %v", err)
	}
	backend := &scriptedBackend{
		configs: make(map[string]json.RawMessage),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 4),
	}
	for number := 1; number <= count; number++ {
		version := documents.Version{ID: "v" + string(rune('0'+number)), ProjectID: "p1", VersionNumber: number}
		backend.versions = append(backend.versions, version)
		backend.configs[version.ID] = encoded
	}
	return backend
}

func (b *scriptedBackend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *scriptedBackend) callCount(call string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, recorded := range b.calls {
		if recorded == call {
			count++
		}
	}
	return count
}

func (b *scriptedBackend) ListProjects(context.Context) ([]documents.Project, error) {
	b.record("list_projects")
	return []documents.Project{planProject}, nil
}

func (b *scriptedBackend) ListVersions(context.Context, string) ([]documents.Version, error) {
	b.record("list_versions")
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]documents.Version(nil), b.versions...), nil
}

func (b *scriptedBackend) GetVersion(ctx context.Context, _, versionID string) (documents.Version, error) {
	b.record("get_version")
	if gate, ok := b.gates[versionID]; ok {
		b.started <- versionID
		select {
		case <-gate:
		case <-ctx.Done():
			return documents.Version{}, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, version := range b.versions {
		if version.ID == versionID {
			version.Config = b.configs[versionID]
			return version, nil
		}
	}
	return documents.Version{}, &gateway.APIError{StatusCode: 404, Detail: "Version not found"}
}

func (b *scriptedBackend) Refine(context.Context, string, string, string, string) (documents.Version, error) {
	b.record("refine")
	b.mu.Lock()
	defer b.mu.Unlock()
	next := documents.Version{ID: "v9", ProjectID: "p1", VersionNumber: len(b.versions) + 1}
	b.versions = append(b.versions, next)
	b.configs[next.ID] = b.configs[b.versions[0].ID]
	return b.refined, nil
}

func (b *scriptedBackend) Download(context.Context, string, string) (gateway.Download, error) {
	b.record("download")
	return gateway.Download{Filename: "server-name.bin", Data: []byte("file")}, nil
}

func (b *scriptedBackend) ListFeedback(context.Context, string, string) ([]gateway.FeedbackRecord, error) {
	b.record("list_feedback")
	return nil, nil
}

func (b *scriptedBackend) SubmitFeedback(context.Context, string, string, string, bool) error {
	b.record("submit_feedback")
	return nil
}

func (b *scriptedBackend) AddComment(context.Context, string, string, string, string) error {
	b.record("add_comment")
	return nil
}

func newScriptedNavigator(testContext *testing.T, backend *scriptedBackend) *Navigator {
	testContext.Helper()
	navigator, err := NewNavigator(NavigatorConfig{
		Backend:  backend,
		Feedback: feedback.NewManager(backend, nil),
	})
	if err != nil {
		testContext.Fatalf("failed to build navigator: %v", err)
	}
	return navigator
}
