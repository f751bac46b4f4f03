package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway/gatewaytest"
	"github.com/MarcoPoloResearchLab/docstudio/internal/session"
	"github.com/MarcoPoloResearchLab/docstudio/internal/workspace"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	testProject  = documents.Project{ID: "p1", Title: "Plan", Doctype: documents.DoctypeWord}
	testDocument = documents.WordDocument{
		Title: "Plan",
		Blocks: []documents.Block{
			{Type: documents.BlockTypeHeading, Level: 1, Text: "Goals"},
			{Type: documents.BlockTypeParagraph, Text: "Grow"},
			{Type: documents.BlockTypeHeading, Level: 1, Text: "Risks"},
		},
	}
)

type testEnvironment struct {
	backend    *gatewaytest.Backend
	store      *session.MemoryStore
	dispatcher *RealtimeDispatcher
	handler    http.Handler
}

func newTestEnvironment(testContext *testing.T, loggedIn bool) *testEnvironment {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	backend := gatewaytest.NewBackend()
	backend.SeedProject(testProject, testDocument)
	upstream := backend.Start(testContext)

	store := session.NewMemoryStore(nil)
	if loggedIn {
		if err := store.Save(context.Background(), session.New(gatewaytest.UserID, "writer@example.com", gatewaytest.AccessToken)); err != nil {
			testContext.Fatalf("failed to seed session: %v", err)
		}
	}

	client, err := gateway.NewClient(gateway.Config{BaseURL: upstream.URL, Sessions: store})
	if err != nil {
		testContext.Fatalf("failed to build gateway client: %v", err)
	}
	dispatcher := NewRealtimeDispatcher()
	app, err := workspace.NewApp(workspace.AppConfig{
		Gateway:  client,
		Sessions: store,
		Observer: dispatcher.Publish,
	})
	if err != nil {
		testContext.Fatalf("failed to build workspace app: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		App:               app,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		HeartbeatInterval: time.Minute,
	})
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}
	return &testEnvironment{backend: backend, store: store, dispatcher: dispatcher, handler: handler}
}

func (env *testEnvironment) do(testContext *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	testContext.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeResponse(testContext *testing.T, recorder *httptest.ResponseRecorder, target any) {
	testContext.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func expectStatus(testContext *testing.T, recorder *httptest.ResponseRecorder, status int) {
	testContext.Helper()
	if recorder.Code != status {
		testContext.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}
