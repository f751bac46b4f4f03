// Package feedback tracks the signed-in user's reactions to the sections of one version.
package feedback

import (
	"context"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	"go.uber.org/zap"
)

// Client is the subset of the gateway the manager needs.
type Client interface {
	ListFeedback(ctx context.Context, projectID, versionID string) ([]gateway.FeedbackRecord, error)
	SubmitFeedback(ctx context.Context, projectID, versionID, sectionTitle string, liked bool) error
	AddComment(ctx context.Context, projectID, versionID, sectionTitle, comment string) error
}

// Entry is the local view of one section's feedback. Nil fields have never been set.
type Entry struct {
	Liked   *bool   `json:"liked,omitempty" yaml:"liked,omitempty"`
	Comment *string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

func (e Entry) clone() Entry {
	copied := Entry{}
	if e.Liked != nil {
		liked := *e.Liked
		copied.Liked = &liked
	}
	if e.Comment != nil {
		comment := *e.Comment
		copied.Comment = &comment
	}
	return copied
}

// Manager holds feedback for the currently loaded (project, version) pair.
type Manager struct {
	client Client
	logger *zap.Logger

	mu        sync.RWMutex
	projectID string
	versionID string
	entries   map[string]Entry
}

// NewManager builds a manager with no version loaded.
func NewManager(client Client, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{client: client, logger: logger, entries: map[string]Entry{}}
}

// Fetch retrieves the feedback of a version without touching local state.
func (m *Manager) Fetch(ctx context.Context, projectID, versionID string) (map[string]Entry, error) {
	records, err := m.client.ListFeedback(ctx, projectID, versionID)
	if err != nil {
		m.logError(opLoad, reasonRequestFailed, err, projectID, versionID)
		return nil, newServiceError(opLoad, reasonRequestFailed, err)
	}
	entries := make(map[string]Entry, len(records))
	for _, record := range records {
		entries[record.SectionTitle] = Entry{Liked: record.Liked, Comment: record.Comment}.clone()
	}
	return entries, nil
}

// Replace makes entries the local state of the given version.
func (m *Manager) Replace(projectID, versionID string, entries map[string]Entry) {
	copied := make(map[string]Entry, len(entries))
	for title, entry := range entries {
		copied[title] = entry.clone()
	}
	m.mu.Lock()
	m.projectID = projectID
	m.versionID = versionID
	m.entries = copied
	m.mu.Unlock()
}

// Load fetches a version's feedback and replaces local state. On failure the previous state is kept.
func (m *Manager) Load(ctx context.Context, projectID, versionID string) (map[string]Entry, error) {
	entries, err := m.Fetch(ctx, projectID, versionID)
	if err != nil {
		return nil, err
	}
	m.Replace(projectID, versionID, entries)
	return m.Snapshot(), nil
}

// Reset forgets the loaded version and all entries.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.projectID = ""
	m.versionID = ""
	m.entries = map[string]Entry{}
	m.mu.Unlock()
}

// Like records a like for the section.
func (m *Manager) Like(ctx context.Context, projectID, versionID, title string) error {
	return m.setLiked(ctx, opLike, projectID, versionID, title, true)
}

// Dislike records a dislike for the section.
func (m *Manager) Dislike(ctx context.Context, projectID, versionID, title string) error {
	return m.setLiked(ctx, opDislike, projectID, versionID, title, false)
}

func (m *Manager) setLiked(ctx context.Context, operation, projectID, versionID, title string, liked bool) error {
	if err := m.checkTarget(operation, projectID, versionID, title); err != nil {
		return err
	}
	if err := m.client.SubmitFeedback(ctx, projectID, versionID, title, liked); err != nil {
		m.logError(operation, reasonRequestFailed, err, projectID, versionID)
		return newServiceError(operation, reasonRequestFailed, err)
	}
	m.update(projectID, versionID, title, func(entry *Entry) {
		entry.Liked = &liked
	})
	return nil
}

// Comment records a comment for the section, keeping any like or dislike.
func (m *Manager) Comment(ctx context.Context, projectID, versionID, title, text string) error {
	comment := strings.TrimSpace(text)
	if comment == "" {
		return newServiceError(opComment, reasonEmptyComment, ErrEmptyComment)
	}
	if err := m.checkTarget(opComment, projectID, versionID, title); err != nil {
		return err
	}
	if err := m.client.AddComment(ctx, projectID, versionID, title, comment); err != nil {
		m.logError(opComment, reasonRequestFailed, err, projectID, versionID)
		return newServiceError(opComment, reasonRequestFailed, err)
	}
	m.update(projectID, versionID, title, func(entry *Entry) {
		entry.Comment = &comment
	})
	return nil
}

// Snapshot returns a deep copy of the local entries.
func (m *Manager) Snapshot() map[string]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	copied := make(map[string]Entry, len(m.entries))
	for title, entry := range m.entries {
		copied[title] = entry.clone()
	}
	return copied
}

// Entry returns the local entry for a title.
func (m *Manager) Entry(title string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[title]
	return entry.clone(), ok
}

// Loaded reports the (project, version) pair the entries belong to.
func (m *Manager) Loaded() (projectID, versionID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projectID, m.versionID
}

func (m *Manager) checkTarget(operation, projectID, versionID, title string) error {
	if strings.TrimSpace(title) == "" {
		return newServiceError(operation, reasonMissingTitle, ErrMissingTitle)
	}
	m.mu.RLock()
	matches := m.versionID != "" && m.projectID == projectID && m.versionID == versionID
	m.mu.RUnlock()
	if !matches {
		return newServiceError(operation, reasonVersionMismatch, ErrVersionMismatch)
	}
	return nil
}

// update applies a successful write unless another version was loaded meanwhile.
func (m *Manager) update(projectID, versionID, title string, apply func(entry *Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.projectID != projectID || m.versionID != versionID {
		return
	}
	entry := m.entries[title]
	apply(&entry)
	m.entries[title] = entry
}

func (m *Manager) logError(operation, reason string, err error, projectID, versionID string) {
	m.logger.Error("feedback service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("project_id", projectID),
		zap.String("version_id", versionID),
		zap.Error(err),
	)
}
