package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Doctype discriminates Word-style documents from slide decks.
type Doctype int

const (
	// DoctypeSlides is the backend's wire value for presentations.
	DoctypeSlides Doctype = 0
	// DoctypeWord is the backend's wire value for Word documents.
	DoctypeWord Doctype = 1
)

var (
	// ErrUnknownDoctype indicates a doctype name or value the client does not understand.
	ErrUnknownDoctype = errors.New("documents: unknown doctype")
	// ErrMalformedContent indicates a version payload that could not be decoded.
	ErrMalformedContent = errors.New("documents: malformed content")
)

// ParseDoctype accepts the outline API names ("word", "ppt") and a few aliases.
func ParseDoctype(raw string) (Doctype, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "word", "doc", "docx", "document":
		return DoctypeWord, nil
	case "ppt", "pptx", "slides", "presentation":
		return DoctypeSlides, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDoctype, raw)
	}
}

// OutlineName is the doc_type value used by the outline suggestion endpoint.
func (d Doctype) OutlineName() string {
	if d == DoctypeWord {
		return "word"
	}
	return "ppt"
}

// Extension is the exported file extension for the doctype.
func (d Doctype) Extension() string {
	if d == DoctypeWord {
		return "docx"
	}
	return "pptx"
}

func (d Doctype) String() string {
	if d == DoctypeWord {
		return "Word"
	}
	return "Slides"
}

// Project is one authored artifact with a version history.
type Project struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Doctype   Doctype   `json:"doctype" yaml:"doctype"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Version is an immutable snapshot of a project's content.
type Version struct {
	ID            string          `json:"id" yaml:"id"`
	ProjectID     string          `json:"project_id" yaml:"project_id"`
	VersionNumber int             `json:"version_number" yaml:"version_number"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	Config        json.RawMessage `json:"config,omitempty" yaml:"-"`
}

// LatestVersion returns the version with the highest version number.
func LatestVersion(versions []Version) (Version, bool) {
	if len(versions) == 0 {
		return Version{}, false
	}
	latest := versions[0]
	for _, candidate := range versions[1:] {
		if candidate.VersionNumber > latest.VersionNumber {
			latest = candidate
		}
	}
	return latest, true
}

// BlockType enumerates Word content block kinds.
type BlockType string

const (
	BlockTypeHeading   BlockType = "heading"
	BlockTypeParagraph BlockType = "paragraph"
)

// Block is one heading or paragraph in document order.
type Block struct {
	Type  BlockType `json:"type" yaml:"type"`
	Text  string    `json:"text" yaml:"text"`
	Level int       `json:"level,omitempty" yaml:"level,omitempty"`
}

// WordDocument is the content payload of a Word version.
type WordDocument struct {
	Title  string  `json:"title" yaml:"title"`
	Blocks []Block `json:"blocks" yaml:"blocks"`
}

// Slide is one slide of a presentation.
type Slide struct {
	Title   string   `json:"title" yaml:"title"`
	Bullets []string `json:"bullets" yaml:"bullets"`
}

// Presentation is the content payload of a slide deck version.
type Presentation struct {
	Topic  string  `json:"topic" yaml:"topic"`
	Slides []Slide `json:"slides" yaml:"slides"`
}
