package workspace

import (
	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/feedback"
)

// View is an immutable snapshot of the navigator for rendering.
type View struct {
	State           State                   `json:"state" yaml:"state"`
	Project         *documents.Project      `json:"project,omitempty" yaml:"project,omitempty"`
	Versions        []documents.Version     `json:"versions" yaml:"versions"`
	SelectedVersion *documents.Version      `json:"selected_version,omitempty" yaml:"selected_version,omitempty"`
	Word            *documents.WordDocument `json:"word,omitempty" yaml:"word,omitempty"`
	Presentation    *documents.Presentation `json:"presentation,omitempty" yaml:"presentation,omitempty"`
	Sections        []SectionView           `json:"sections" yaml:"sections"`
}

// SectionView is one Word section or slide with its resolved title and feedback.
type SectionView struct {
	Index      int               `json:"index" yaml:"index"`
	Title      string            `json:"title" yaml:"title"`
	Heading    *documents.Block  `json:"heading,omitempty" yaml:"heading,omitempty"`
	Paragraphs []documents.Block `json:"paragraphs,omitempty" yaml:"paragraphs,omitempty"`
	Bullets    []string          `json:"bullets,omitempty" yaml:"bullets,omitempty"`
	Feedback   feedback.Entry    `json:"feedback" yaml:"feedback"`
}

// View snapshots the navigator. Slices and pointers in the result are not shared with it.
func (n *Navigator) View() View {
	n.mu.RLock()
	defer n.mu.RUnlock()

	view := View{
		State:    n.state,
		Versions: append([]documents.Version{}, n.versions...),
		Sections: []SectionView{},
	}
	for index := range view.Versions {
		view.Versions[index].Config = nil
	}
	if n.project != nil {
		project := *n.project
		view.Project = &project
	}
	if n.selected != nil {
		selected := *n.selected
		selected.Config = nil
		view.SelectedVersion = &selected
	}
	if n.content == nil {
		return view
	}

	entries := n.feedback.Snapshot()
	if n.content.word != nil {
		word := documents.WordDocument{
			Title:  n.content.word.Title,
			Blocks: append([]documents.Block{}, n.content.word.Blocks...),
		}
		view.Word = &word
		for index, section := range n.content.sections {
			sectionView := SectionView{
				Index:      index,
				Title:      n.content.titles[index],
				Paragraphs: append([]documents.Block{}, section.Paragraphs...),
				Feedback:   entries[n.content.titles[index]],
			}
			if section.Heading != nil {
				heading := *section.Heading
				sectionView.Heading = &heading
			}
			view.Sections = append(view.Sections, sectionView)
		}
		return view
	}

	presentation := documents.Presentation{
		Topic:  n.content.presentation.Topic,
		Slides: make([]documents.Slide, len(n.content.presentation.Slides)),
	}
	for index, slide := range n.content.presentation.Slides {
		bullets := append([]string{}, slide.Bullets...)
		presentation.Slides[index] = documents.Slide{Title: slide.Title, Bullets: bullets}
		view.Sections = append(view.Sections, SectionView{
			Index:    index,
			Title:    n.content.titles[index],
			Bullets:  append([]string{}, bullets...),
			Feedback: entries[n.content.titles[index]],
		})
	}
	view.Presentation = &presentation
	return view
}
