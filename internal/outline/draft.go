// Package outline holds the editable outline of a project that has not been generated yet.
package outline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Mode selects which representation of the outline is being edited.
type Mode string

const (
	// ModeForm edits the outline as a list of entries.
	ModeForm Mode = "form"
	// ModeRaw edits the outline as JSON text.
	ModeRaw Mode = "raw"
)

const (
	keySections = "sections"
	keySlides   = "slides"
	rawIndent   = "  "
)

var (
	// ErrMalformedRaw indicates raw outline text that is not valid outline JSON.
	ErrMalformedRaw = errors.New("outline: malformed raw outline")
	// ErrMissingTopic indicates an operation that needs a topic was called without one.
	ErrMissingTopic = errors.New("outline: topic required")
	// ErrEntryIndex indicates an entry index outside the list.
	ErrEntryIndex = errors.New("outline: entry index out of range")
	// ErrUnknownMode indicates a mode other than form or raw.
	ErrUnknownMode = errors.New("outline: unknown mode")
)

// Suggester proposes entries for a topic.
type Suggester interface {
	SuggestOutline(ctx context.Context, topic string, doctype documents.Doctype) ([]string, error)
}

// Generator creates a project from a validated outline.
type Generator interface {
	GenerateWord(ctx context.Context, topic string, sections []string) (gateway.Generated, error)
	GeneratePresentation(ctx context.Context, topic string, slides []string) (gateway.Generated, error)
}

// Draft is the in-progress outline. Word sections and slide titles are kept separately
// so switching the doctype back and forth loses nothing.
type Draft struct {
	Topic   string
	Doctype documents.Doctype

	mode     Mode
	sections []string
	slides   []string
	raw      string
}

// NewDraft returns an empty Word draft in form mode.
func NewDraft() *Draft {
	draft := &Draft{}
	draft.Reset()
	return draft
}

// Reset restores the initial draft.
func (d *Draft) Reset() {
	d.Topic = ""
	d.Doctype = documents.DoctypeWord
	d.mode = ModeForm
	d.sections = []string{""}
	d.slides = []string{""}
	d.raw = ""
}

// Mode reports the active representation.
func (d *Draft) Mode() Mode {
	return d.mode
}

// Raw returns the raw text buffer.
func (d *Draft) Raw() string {
	return d.raw
}

// SetRaw replaces the raw text buffer.
func (d *Draft) SetRaw(text string) {
	d.raw = text
}

// Entries returns a copy of the structured list for the active doctype.
func (d *Draft) Entries() []string {
	return append([]string(nil), *d.list()...)
}

// SetEntries replaces the structured list for the active doctype.
func (d *Draft) SetEntries(entries []string) {
	*d.list() = append([]string{}, entries...)
}

// AddEntry appends an entry to the structured list.
func (d *Draft) AddEntry(entry string) {
	list := d.list()
	*list = append(*list, entry)
}

// RemoveEntry deletes the entry at index.
func (d *Draft) RemoveEntry(index int) error {
	list := d.list()
	if index < 0 || index >= len(*list) {
		return fmt.Errorf("%w: %d", ErrEntryIndex, index)
	}
	*list = append((*list)[:index:index], (*list)[index+1:]...)
	return nil
}

// UpdateEntry replaces the entry at index.
func (d *Draft) UpdateEntry(index int, entry string) error {
	list := *d.list()
	if index < 0 || index >= len(list) {
		return fmt.Errorf("%w: %d", ErrEntryIndex, index)
	}
	list[index] = entry
	return nil
}

// SwitchMode changes the active representation, carrying the outline across.
// Entering raw mode serializes the non-empty entries as typed. Entering form mode parses
// the raw text when it is not blank; if it is malformed the structured list is
// left as it was and ErrMalformedRaw is returned, but the mode still changes.
func (d *Draft) SwitchMode(mode Mode) error {
	switch mode {
	case ModeRaw:
		encoded, err := encodeRaw(d.key(), filled(*d.list()))
		if err != nil {
			return err
		}
		d.raw = encoded
		d.mode = ModeRaw
		return nil
	case ModeForm:
		d.mode = ModeForm
		if strings.TrimSpace(d.raw) == "" {
			return nil
		}
		entries, present, err := decodeRaw(d.raw, d.key())
		if err != nil {
			return err
		}
		if !present {
			entries = []string{""}
		}
		*d.list() = entries
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// ActiveEntries resolves the non-empty trimmed entries of the active representation.
func (d *Draft) ActiveEntries() ([]string, error) {
	if d.mode == ModeRaw {
		entries, _, err := decodeRaw(d.raw, d.key())
		if err != nil {
			return nil, err
		}
		return nonEmpty(entries), nil
	}
	return nonEmpty(*d.list()), nil
}

type generationRequest struct {
	Topic   string   `json:"topic"`
	Entries []string `json:"entries"`
}

func (r *generationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Topic, validation.Required.Error("a topic is required")),
		validation.Field(&r.Entries, validation.Required.Error("at least one entry is required")),
	)
}

// Validate reports whether the draft can be generated.
func (d *Draft) Validate() error {
	_, err := d.request()
	return err
}

func (d *Draft) request() (generationRequest, error) {
	entries, err := d.ActiveEntries()
	if err != nil {
		return generationRequest{}, err
	}
	request := generationRequest{Topic: strings.TrimSpace(d.Topic), Entries: entries}
	if err := request.Validate(); err != nil {
		return generationRequest{}, err
	}
	return request, nil
}

// Suggest fills the structured list with entries proposed for the topic.
// The raw buffer is not touched.
func (d *Draft) Suggest(ctx context.Context, suggester Suggester) error {
	topic := strings.TrimSpace(d.Topic)
	if topic == "" {
		return ErrMissingTopic
	}
	entries, err := suggester.SuggestOutline(ctx, topic, d.Doctype)
	if err != nil {
		return fmt.Errorf("outline: suggest: %w", err)
	}
	if len(entries) == 0 {
		entries = []string{""}
	}
	d.SetEntries(entries)
	return nil
}

// Generate validates the draft and asks the backend to create the project.
// Nothing is sent when validation fails.
func (d *Draft) Generate(ctx context.Context, generator Generator) (gateway.Generated, error) {
	request, err := d.request()
	if err != nil {
		return gateway.Generated{}, err
	}
	var generated gateway.Generated
	if d.Doctype == documents.DoctypeWord {
		generated, err = generator.GenerateWord(ctx, request.Topic, request.Entries)
	} else {
		generated, err = generator.GeneratePresentation(ctx, request.Topic, request.Entries)
	}
	if err != nil {
		return gateway.Generated{}, fmt.Errorf("outline: generate: %w", err)
	}
	return generated, nil
}

func (d *Draft) list() *[]string {
	if d.Doctype == documents.DoctypeWord {
		return &d.sections
	}
	return &d.slides
}

func (d *Draft) key() string {
	if d.Doctype == documents.DoctypeWord {
		return keySections
	}
	return keySlides
}

func encodeRaw(key string, entries []string) (string, error) {
	encoded, err := json.MarshalIndent(map[string][]string{key: entries}, "", rawIndent)
	if err != nil {
		return "", fmt.Errorf("outline: encode raw: %w", err)
	}
	return string(encoded), nil
}

// decodeRaw reads the entry list stored under key. present is false when the
// object is well formed but the key is missing or null.
func decodeRaw(raw, key string) (entries []string, present bool, err error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &object); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedRaw, err)
	}
	if object == nil {
		return nil, false, fmt.Errorf("%w: expected an object", ErrMalformedRaw)
	}
	value, ok := object[key]
	if !ok {
		return []string{}, false, nil
	}
	entries = []string{}
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, false, fmt.Errorf("%w: %q must be a list of strings", ErrMalformedRaw, key)
	}
	if entries == nil {
		return []string{}, false, nil
	}
	return entries, true, nil
}

// filled drops blank entries and keeps the rest exactly as typed.
func filled(entries []string) []string {
	kept := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry) != "" {
			kept = append(kept, entry)
		}
	}
	return kept
}

func nonEmpty(entries []string) []string {
	kept := make([]string, 0, len(entries))
	for _, entry := range entries {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return kept
}
