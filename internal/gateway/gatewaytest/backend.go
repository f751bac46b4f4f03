// Package gatewaytest provides an in-memory authoring backend for exercising the gateway client.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/gin-gonic/gin"
)

const (
	// AccessToken is the bearer token the backend issues and accepts.
	AccessToken = "test-access-token"
	// UserID is the identity returned for every account.
	UserID = "user-1"
)

// Feedback mirrors one stored section_feedback row.
type Feedback struct {
	SectionTitle string  `json:"section_title"`
	Liked        *bool   `json:"liked"`
	Comment      *string `json:"comment"`
}

// Request captures one request the backend received.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          map[string]any
}

// Backend is a fake of the authoring REST API.
type Backend struct {
	mu        sync.Mutex
	accounts  map[string]string
	projects  []documents.Project
	versions  map[string][]documents.Version
	feedback  map[string]map[string]*Feedback
	failures  map[string]int
	requests  []Request
	nextID    int
	clock     func() time.Time
	signupRaw bool
	confirm   bool
	outline   []string
}

// NewBackend returns an empty backend with one registered account.
func NewBackend() *Backend {
	return &Backend{
		accounts: map[string]string{"writer@example.com": "secret-password"},
		versions: make(map[string][]documents.Version),
		feedback: make(map[string]map[string]*Feedback),
		failures: make(map[string]int),
		clock: func() time.Time {
			return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
		},
		outline: []string{"Introduction", "Background", "Conclusion"},
	}
}

// Start serves the backend over HTTP for the duration of the test.
func (b *Backend) Start(testContext testing.TB) *httptest.Server {
	testContext.Helper()
	server := httptest.NewServer(b.Handler())
	testContext.Cleanup(server.Close)
	return server
}

// SeedProject stores a project and its versions; version numbers are assigned in order.
func (b *Backend) SeedProject(project documents.Project, configs ...any) []documents.Version {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projects = append(b.projects, project)
	for _, config := range configs {
		b.appendVersionLocked(project.ID, mustJSON(config))
	}
	return append([]documents.Version(nil), b.versions[project.ID]...)
}

// SeedFeedback stores a feedback row for a version.
func (b *Backend) SeedFeedback(versionID string, entry Feedback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedbackLocked(versionID)[entry.SectionTitle] = &entry
}

// FailNext makes the next request to path answer with status.
func (b *Backend) FailNext(path string, status int) {
	b.mu.Lock()
	b.failures[path] = status
	b.mu.Unlock()
}

// SignupAtRoot makes signup return the user fields at the top level.
func (b *Backend) SignupAtRoot(enabled bool) {
	b.mu.Lock()
	b.signupRaw = enabled
	b.mu.Unlock()
}

// RequireConfirmation makes signup omit the access token.
func (b *Backend) RequireConfirmation(enabled bool) {
	b.mu.Lock()
	b.confirm = enabled
	b.mu.Unlock()
}

// Requests returns a copy of the received requests.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// RequestCount counts received requests matching method and path.
func (b *Backend) RequestCount(method, path string) int {
	count := 0
	for _, request := range b.Requests() {
		if request.Method == method && request.Path == path {
			count++
		}
	}
	return count
}

// Feedback returns the stored feedback row for a version and title.
func (b *Backend) Feedback(versionID, title string) (Feedback, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.feedback[versionID][title]
	if !ok {
		return Feedback{}, false
	}
	return *entry, true
}

// Versions returns the stored versions of a project in creation order.
func (b *Backend) Versions(projectID string) []documents.Version {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]documents.Version(nil), b.versions[projectID]...)
}

// Handler builds the gin router serving the API.
func (b *Backend) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(b.record, b.injectFailures)

	router.POST("/login", b.handleLogin)
	router.POST("/signup", b.handleSignup)

	protected := router.Group("/")
	protected.Use(b.authorize)
	protected.GET("/projects/my", b.handleListProjects)
	protected.GET("/projects/:projectID/versions", b.handleListVersions)
	protected.GET("/projects/:projectID/versions/:versionID", b.handleGetVersion)
	protected.GET("/projects/:projectID/versions/:versionID/feedback", b.handleListFeedback)
	protected.POST("/projects/:projectID/versions/:versionID/feedback", b.handleSubmitFeedback)
	protected.POST("/projects/:projectID/versions/:versionID/comments", b.handleAddComment)
	protected.POST("/projects/:projectID/versions/:versionID/refine", b.handleRefine)
	protected.GET("/projects/:projectID/versions/:versionID/download", b.handleDownload)
	protected.POST("/generate-word-json", b.handleGenerateWord)
	protected.POST("/generate-ppt-json", b.handleGeneratePresentation)
	protected.POST("/suggest-outline", b.handleSuggestOutline)

	return router
}

func (b *Backend) record(c *gin.Context) {
	body := map[string]any{}
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		raw, err := c.GetRawData()
		if err == nil && len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
			c.Request.Body = newBody(raw)
		}
	}
	b.mu.Lock()
	b.requests = append(b.requests, Request{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		Authorization: c.GetHeader("Authorization"),
		RequestID:     c.GetHeader("X-Request-ID"),
		Body:          body,
	})
	b.mu.Unlock()
	c.Next()
}

func (b *Backend) injectFailures(c *gin.Context) {
	b.mu.Lock()
	status, ok := b.failures[c.Request.URL.Path]
	if ok {
		delete(b.failures, c.Request.URL.Path)
	}
	b.mu.Unlock()
	if ok {
		c.AbortWithStatusJSON(status, gin.H{"detail": fmt.Sprintf("injected failure %d", status)})
		return
	}
	c.Next()
}

func (b *Backend) authorize(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) != AccessToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired token"})
		return
	}
	c.Next()
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *Backend) handleLogin(c *gin.Context) {
	var request credentials
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "field required"}}})
		return
	}
	b.mu.Lock()
	password, ok := b.accounts[request.Email]
	b.mu.Unlock()
	if !ok || password != request.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": AccessToken,
		"token_type":   "bearer",
		"user":         gin.H{"id": UserID, "email": request.Email},
	})
}

func (b *Backend) handleSignup(c *gin.Context) {
	var request credentials
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "field required"}}})
		return
	}
	b.mu.Lock()
	if _, exists := b.accounts[request.Email]; exists {
		b.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "User already registered"})
		return
	}
	b.accounts[request.Email] = request.Password
	atRoot, confirm := b.signupRaw, b.confirm
	b.mu.Unlock()

	response := gin.H{}
	if atRoot {
		response["id"] = UserID
		response["email"] = request.Email
		response["user_metadata"] = gin.H{}
	} else {
		response["user"] = gin.H{"id": UserID, "email": request.Email}
	}
	if !confirm {
		response["access_token"] = AccessToken
	}
	c.JSON(http.StatusOK, response)
}

func (b *Backend) handleListProjects(c *gin.Context) {
	b.mu.Lock()
	projects := make([]documents.Project, len(b.projects))
	for index, project := range b.projects {
		projects[len(b.projects)-1-index] = project
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Projects fetched successfully", "projects": projects})
}

func (b *Backend) handleListVersions(c *gin.Context) {
	projectID := c.Param("projectID")
	b.mu.Lock()
	stored := b.versions[projectID]
	listed := make([]documents.Version, len(stored))
	for index, version := range stored {
		version.Config = nil
		listed[len(stored)-1-index] = version
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "versions": listed})
}

func (b *Backend) handleGetVersion(c *gin.Context) {
	version, ok := b.findVersion(c.Param("projectID"), c.Param("versionID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Version not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

func (b *Backend) handleListFeedback(c *gin.Context) {
	versionID := c.Param("versionID")
	b.mu.Lock()
	rows := make([]Feedback, 0, len(b.feedback[versionID]))
	for _, entry := range b.feedback[versionID] {
		rows = append(rows, *entry)
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"feedback": rows})
}

func (b *Backend) handleSubmitFeedback(c *gin.Context) {
	var request struct {
		SectionTitle string `json:"section_title"`
		Liked        *bool  `json:"liked"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.Liked == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid feedback"})
		return
	}
	if _, ok := b.findVersion(c.Param("projectID"), c.Param("versionID")); !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Version not found"})
		return
	}
	b.mu.Lock()
	rows := b.feedbackLocked(c.Param("versionID"))
	entry, ok := rows[request.SectionTitle]
	if !ok {
		entry = &Feedback{SectionTitle: request.SectionTitle}
		rows[request.SectionTitle] = entry
	}
	liked := *request.Liked
	entry.Liked = &liked
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Feedback submitted successfully"})
}

func (b *Backend) handleAddComment(c *gin.Context) {
	var request struct {
		SectionTitle string `json:"section_title"`
		Comment      string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid comment"})
		return
	}
	if _, ok := b.findVersion(c.Param("projectID"), c.Param("versionID")); !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Version not found"})
		return
	}
	b.mu.Lock()
	rows := b.feedbackLocked(c.Param("versionID"))
	entry, ok := rows[request.SectionTitle]
	if !ok {
		entry = &Feedback{SectionTitle: request.SectionTitle}
		rows[request.SectionTitle] = entry
	}
	comment := request.Comment
	entry.Comment = &comment
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Comment added successfully"})
}

func (b *Backend) handleRefine(c *gin.Context) {
	var request struct {
		SectionTitle     string `json:"section_title"`
		RefinementPrompt string `json:"refinement_prompt"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid refinement"})
		return
	}
	projectID := c.Param("projectID")
	project, ok := b.findProject(projectID)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Not authorized for this project"})
		return
	}
	version, ok := b.findVersion(projectID, c.Param("versionID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Version not found"})
		return
	}

	var refined any
	if project.Doctype == documents.DoctypeWord {
		document, err := documents.DecodeWord(version.Config)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		found := false
		blocks := make([]documents.Block, 0, len(document.Blocks)+1)
		for _, block := range document.Blocks {
			blocks = append(blocks, block)
			if !found && block.Type == documents.BlockTypeHeading && block.Text == request.SectionTitle {
				found = true
				blocks = append(blocks, documents.Block{Type: documents.BlockTypeParagraph, Text: "Refined: " + request.RefinementPrompt})
			}
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Section '%s' not found", request.SectionTitle)})
			return
		}
		document.Blocks = blocks
		refined = document
	} else {
		presentation, err := documents.DecodePresentation(version.Config)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		found := false
		for index, slide := range presentation.Slides {
			if slide.Title == request.SectionTitle {
				presentation.Slides[index].Bullets = []string{"Refined: " + request.RefinementPrompt}
				found = true
				break
			}
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Slide '%s' not found", request.SectionTitle)})
			return
		}
		refined = presentation
	}

	b.mu.Lock()
	created := b.appendVersionLocked(projectID, mustJSON(refined))
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Section refined and new version created successfully", "version": created})
}

func (b *Backend) handleDownload(c *gin.Context) {
	project, ok := b.findProject(c.Param("projectID"))
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Not authorized for this project"})
		return
	}
	version, ok := b.findVersion(project.ID, c.Param("versionID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Version not found"})
		return
	}
	filename := project.Title + "." + project.Doctype.Extension()
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/octet-stream", []byte(project.Doctype.Extension()+":"+version.ID))
}

func (b *Backend) handleGenerateWord(c *gin.Context) {
	var request struct {
		MainTopic string   `json:"main_topic"`
		Sections  []string `json:"sections"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request"})
		return
	}
	blocks := []documents.Block{{Type: documents.BlockTypeHeading, Level: 1, Text: request.MainTopic}}
	for _, section := range request.Sections {
		blocks = append(blocks,
			documents.Block{Type: documents.BlockTypeHeading, Level: 2, Text: section},
			documents.Block{Type: documents.BlockTypeParagraph, Text: "About " + section},
		)
	}
	b.respondGenerated(c, request.MainTopic, documents.DoctypeWord, documents.WordDocument{Title: request.MainTopic, Blocks: blocks})
}

func (b *Backend) handleGeneratePresentation(c *gin.Context) {
	var request struct {
		Topic  string   `json:"topic"`
		Slides []string `json:"slides"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request"})
		return
	}
	slides := make([]documents.Slide, 0, len(request.Slides))
	for _, title := range request.Slides {
		slides = append(slides, documents.Slide{Title: title, Bullets: []string{"About " + title}})
	}
	b.respondGenerated(c, request.Topic, documents.DoctypeSlides, documents.Presentation{Topic: request.Topic, Slides: slides})
}

func (b *Backend) respondGenerated(c *gin.Context, title string, doctype documents.Doctype, content any) {
	b.mu.Lock()
	b.nextID++
	project := documents.Project{
		ID:        fmt.Sprintf("project-%d", b.nextID),
		Title:     title,
		Doctype:   doctype,
		CreatedAt: b.clock(),
	}
	b.projects = append(b.projects, project)
	version := b.appendVersionLocked(project.ID, mustJSON(content))
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"project": project, "version": version, "content": content})
}

func (b *Backend) handleSuggestOutline(c *gin.Context) {
	var request struct {
		Topic   string `json:"topic"`
		DocType string `json:"doc_type"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request"})
		return
	}
	b.mu.Lock()
	outline := append([]string(nil), b.outline...)
	b.mu.Unlock()
	switch request.DocType {
	case "word":
		c.JSON(http.StatusOK, gin.H{"sections": outline})
	case "ppt":
		c.JSON(http.StatusOK, gin.H{"slides": outline})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid doc_type. Must be 'word' or 'ppt'"})
	}
}

func (b *Backend) findProject(projectID string) (documents.Project, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, project := range b.projects {
		if project.ID == projectID {
			return project, true
		}
	}
	return documents.Project{}, false
}

func (b *Backend) findVersion(projectID, versionID string) (documents.Version, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, version := range b.versions[projectID] {
		if version.ID == versionID {
			return version, true
		}
	}
	return documents.Version{}, false
}

func (b *Backend) appendVersionLocked(projectID string, config json.RawMessage) documents.Version {
	number := len(b.versions[projectID]) + 1
	version := documents.Version{
		ID:            fmt.Sprintf("%s-v%d", projectID, number),
		ProjectID:     projectID,
		VersionNumber: number,
		CreatedAt:     b.clock().Add(time.Duration(number) * time.Minute),
		Config:        config,
	}
	b.versions[projectID] = append(b.versions[projectID], version)
	return version
}

func (b *Backend) feedbackLocked(versionID string) map[string]*Feedback {
	rows, ok := b.feedback[versionID]
	if !ok {
		rows = make(map[string]*Feedback)
		b.feedback[versionID] = rows
	}
	return rows
}

func mustJSON(value any) json.RawMessage {
	if raw, ok := value.(json.RawMessage); ok {
		return raw
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return encoded
}
