// Package workspace drives project and version navigation for the signed-in user.
package workspace

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/feedback"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the navigator's position in the open/select/load lifecycle.
type State string

const (
	StateClosed          State = "closed"
	StateVersionsLoading State = "versions_loading"
	StateVersionSelected State = "version_selected"
	StateContentLoading  State = "content_loading"
	StateContentReady    State = "content_ready"
)

// Backend is the subset of the gateway the navigator needs.
type Backend interface {
	ListProjects(ctx context.Context) ([]documents.Project, error)
	ListVersions(ctx context.Context, projectID string) ([]documents.Version, error)
	GetVersion(ctx context.Context, projectID, versionID string) (documents.Version, error)
	Refine(ctx context.Context, projectID, versionID, sectionTitle, prompt string) (documents.Version, error)
	Download(ctx context.Context, projectID, versionID string) (gateway.Download, error)
}

// NavigatorConfig describes the navigator's dependencies.
type NavigatorConfig struct {
	Backend  Backend
	Feedback *feedback.Manager
	Logger   *zap.Logger
	Observer Observer
	Clock    func() time.Time
}

// Navigator holds the open project, its versions, the selected version, and its content.
// Every selection bumps a generation counter; responses for older generations are discarded.
type Navigator struct {
	backend  Backend
	feedback *feedback.Manager
	logger   *zap.Logger
	observer Observer
	clock    func() time.Time

	mu         sync.RWMutex
	state      State
	generation uint64
	project    *documents.Project
	versions   []documents.Version
	selected   *documents.Version
	content    *content
}

type content struct {
	word         *documents.WordDocument
	presentation *documents.Presentation
	sections     []documents.Section
	titles       []string
}

// NewNavigator builds a closed navigator.
func NewNavigator(cfg NavigatorConfig) (*Navigator, error) {
	if cfg.Backend == nil {
		return nil, newServiceError("workspace.navigator.new", "missing_backend", ErrInvalidConfig)
	}
	if cfg.Feedback == nil {
		return nil, newServiceError("workspace.navigator.new", "missing_feedback", ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Navigator{
		backend:  cfg.Backend,
		feedback: cfg.Feedback,
		logger:   logger,
		observer: cfg.Observer,
		clock:    clock,
		state:    StateClosed,
	}, nil
}

// State reports the current state.
func (n *Navigator) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// ListProjects returns the signed-in user's projects without changing navigation state.
func (n *Navigator) ListProjects(ctx context.Context) ([]documents.Project, error) {
	projects, err := n.backend.ListProjects(ctx)
	if err != nil {
		n.logError(opListProjects, reasonRequestFailed, err)
		return nil, newServiceError(opListProjects, reasonRequestFailed, err)
	}
	return projects, nil
}

// OpenProject discards any prior selection, loads the project's versions, and
// selects the latest one. A project with no versions stays in StateVersionsLoading
// with an empty version list.
func (n *Navigator) OpenProject(ctx context.Context, project documents.Project) error {
	n.mu.Lock()
	n.generation++
	generation := n.generation
	opened := project
	n.project = &opened
	n.versions = []documents.Version{}
	n.selected = nil
	n.content = nil
	n.state = StateVersionsLoading
	n.mu.Unlock()
	n.feedback.Reset()
	n.emit(EventStateChanged)

	versions, err := n.backend.ListVersions(ctx, project.ID)
	if errors.Is(err, gateway.ErrUnauthorized) {
		return newServiceError(opOpenProject, reasonRequestFailed, err)
	}

	n.mu.Lock()
	if n.generation != generation {
		n.mu.Unlock()
		return newServiceError(opOpenProject, reasonStaleSelection, ErrStaleSelection)
	}
	if err != nil {
		n.mu.Unlock()
		n.logError(opOpenProject, reasonRequestFailed, err, zap.String("project_id", project.ID))
		return newServiceError(opOpenProject, reasonRequestFailed, err)
	}
	n.versions = append([]documents.Version{}, versions...)
	latest, ok := documents.LatestVersion(versions)
	n.mu.Unlock()

	if !ok {
		n.emit(EventStateChanged)
		return nil
	}
	return n.SelectVersion(ctx, latest.ID)
}

// SelectVersion loads a version's content and feedback concurrently.
func (n *Navigator) SelectVersion(ctx context.Context, versionID string) error {
	n.mu.Lock()
	if n.project == nil {
		n.mu.Unlock()
		return newServiceError(opSelectVersion, reasonInvalidInput, ErrNoProject)
	}
	version, found := findVersion(n.versions, versionID)
	if !found {
		n.mu.Unlock()
		return newServiceError(opSelectVersion, reasonInvalidInput, ErrUnknownVersion)
	}
	n.generation++
	generation := n.generation
	project := *n.project
	n.selected = &version
	n.content = nil
	n.state = StateVersionSelected
	n.mu.Unlock()
	n.emit(EventStateChanged)

	n.mu.Lock()
	if n.generation == generation {
		n.state = StateContentLoading
	}
	n.mu.Unlock()
	n.emit(EventStateChanged)

	var (
		loaded  documents.Version
		entries map[string]feedback.Entry
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		loaded, err = n.backend.GetVersion(groupCtx, project.ID, versionID)
		return err
	})
	group.Go(func() error {
		var err error
		entries, err = n.feedback.Fetch(groupCtx, project.ID, versionID)
		return err
	})
	err := group.Wait()
	if errors.Is(err, gateway.ErrUnauthorized) {
		return newServiceError(opSelectVersion, reasonRequestFailed, err)
	}

	var decoded *content
	if err == nil {
		decoded, err = decodeContent(project.Doctype, loaded)
		if err != nil {
			n.mu.Lock()
			stale := n.generation != generation
			if !stale {
				n.state = StateVersionSelected
			}
			n.mu.Unlock()
			if stale {
				return newServiceError(opSelectVersion, reasonStaleSelection, ErrStaleSelection)
			}
			n.logError(opSelectVersion, reasonDecodeFailed, err, zap.String("version_id", versionID))
			n.emit(EventStateChanged)
			return newServiceError(opSelectVersion, reasonDecodeFailed, err)
		}
	}

	n.mu.Lock()
	if n.generation != generation {
		n.mu.Unlock()
		n.logger.Debug("discarded stale version response", zap.String("version_id", versionID))
		return newServiceError(opSelectVersion, reasonStaleSelection, ErrStaleSelection)
	}
	if err != nil {
		n.state = StateVersionSelected
		n.mu.Unlock()
		n.logError(opSelectVersion, reasonRequestFailed, err, zap.String("version_id", versionID))
		n.emit(EventStateChanged)
		return newServiceError(opSelectVersion, reasonRequestFailed, err)
	}
	n.content = decoded
	n.state = StateContentReady
	n.feedback.Replace(project.ID, versionID, entries)
	n.mu.Unlock()

	if duplicates := documents.DuplicateTitles(decoded.titles); len(duplicates) > 0 {
		n.logger.Warn("sections share a title; their feedback is shared",
			zap.String("version_id", versionID),
			zap.Strings("titles", duplicates),
		)
	}
	n.emit(EventStateChanged)
	return nil
}

// Refine asks the backend to regenerate one section, then selects the version it created.
func (n *Navigator) Refine(ctx context.Context, title, prompt string) error {
	trimmedPrompt := strings.TrimSpace(prompt)
	if trimmedPrompt == "" {
		return newServiceError(opRefine, reasonInvalidInput, ErrEmptyPrompt)
	}
	target, err := n.target()
	if err != nil {
		return newServiceError(opRefine, reasonInvalidInput, err)
	}

	created, err := n.backend.Refine(ctx, target.project.ID, target.versionID, title, trimmedPrompt)
	if err != nil {
		n.logError(opRefine, reasonRequestFailed, err, zap.String("version_id", target.versionID))
		return newServiceError(opRefine, reasonRequestFailed, err)
	}

	versions, err := n.backend.ListVersions(ctx, target.project.ID)
	if err != nil {
		n.logError(opRefine, reasonReloadFailed, err, zap.String("project_id", target.project.ID))
		return newServiceError(opRefine, reasonReloadFailed, err)
	}

	n.mu.Lock()
	if n.generation != target.generation {
		n.mu.Unlock()
		return newServiceError(opRefine, reasonStaleSelection, ErrStaleSelection)
	}
	n.versions = append([]documents.Version{}, versions...)
	n.mu.Unlock()

	nextID := created.ID
	if _, found := findVersion(versions, nextID); !found {
		latest, ok := documents.LatestVersion(versions)
		if !ok {
			return newServiceError(opRefine, reasonReloadFailed, ErrUnknownVersion)
		}
		nextID = latest.ID
	}
	return n.SelectVersion(ctx, nextID)
}

// Download exports the selected version. The filename is the project title plus the doctype's extension.
func (n *Navigator) Download(ctx context.Context) (gateway.Download, error) {
	n.mu.RLock()
	if n.project == nil {
		n.mu.RUnlock()
		return gateway.Download{}, newServiceError(opDownload, reasonInvalidInput, ErrNoProject)
	}
	if n.selected == nil {
		n.mu.RUnlock()
		return gateway.Download{}, newServiceError(opDownload, reasonInvalidInput, ErrContentNotReady)
	}
	project := *n.project
	versionID := n.selected.ID
	n.mu.RUnlock()

	file, err := n.backend.Download(ctx, project.ID, versionID)
	if err != nil {
		n.logError(opDownload, reasonRequestFailed, err, zap.String("version_id", versionID))
		return gateway.Download{}, newServiceError(opDownload, reasonRequestFailed, err)
	}
	file.Filename = downloadFilename(project)
	return file, nil
}

// Close returns to StateClosed and forgets everything loaded.
func (n *Navigator) Close() {
	n.mu.Lock()
	n.generation++
	n.project = nil
	n.versions = nil
	n.selected = nil
	n.content = nil
	n.state = StateClosed
	n.mu.Unlock()
	n.feedback.Reset()
	n.emit(EventStateChanged)
}

// SectionTitle resolves the display title of the section or slide at index in the loaded content.
func (n *Navigator) SectionTitle(index int) (string, error) {
	target, err := n.target()
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(target.titles) {
		return "", ErrSectionIndex
	}
	return target.titles[index], nil
}

type selectionTarget struct {
	project    documents.Project
	versionID  string
	generation uint64
	titles     []string
}

// target captures the loaded selection, requiring StateContentReady.
func (n *Navigator) target() (selectionTarget, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.project == nil {
		return selectionTarget{}, ErrNoProject
	}
	if n.state != StateContentReady || n.selected == nil || n.content == nil {
		return selectionTarget{}, ErrContentNotReady
	}
	return selectionTarget{
		project:    *n.project,
		versionID:  n.selected.ID,
		generation: n.generation,
		titles:     n.content.titles,
	}, nil
}

func (n *Navigator) emit(eventType EventType) {
	if n.observer == nil {
		return
	}
	n.mu.RLock()
	event := Event{Type: eventType, State: n.state, Timestamp: n.clock().UTC()}
	if n.project != nil {
		event.ProjectID = n.project.ID
	}
	if n.selected != nil {
		event.VersionID = n.selected.ID
	}
	n.mu.RUnlock()
	n.observer(event)
}

func (n *Navigator) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	n.logger.Error("workspace error", append(attrs, fields...)...)
}

func decodeContent(doctype documents.Doctype, version documents.Version) (*content, error) {
	if doctype == documents.DoctypeWord {
		document, err := documents.DecodeWord(version.Config)
		if err != nil {
			return nil, err
		}
		sections := documents.DeriveSections(document.Blocks)
		return &content{
			word:     &document,
			sections: sections,
			titles:   documents.SectionTitles(sections),
		}, nil
	}
	presentation, err := documents.DecodePresentation(version.Config)
	if err != nil {
		return nil, err
	}
	return &content{
		presentation: &presentation,
		titles:       documents.SlideTitles(presentation.Slides),
	}, nil
}

func findVersion(versions []documents.Version, versionID string) (documents.Version, bool) {
	for _, version := range versions {
		if version.ID == versionID {
			return version, true
		}
	}
	return documents.Version{}, false
}

var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_")

func downloadFilename(project documents.Project) string {
	title := strings.TrimSpace(project.Title)
	if title == "" {
		title = project.ID
	}
	return filenameReplacer.Replace(title) + "." + project.Doctype.Extension()
}
