package documents

import "strconv"

// Section groups a heading with the paragraphs that follow it.
// Heading is nil for paragraphs that appear before any heading.
type Section struct {
	Heading    *Block  `json:"heading,omitempty" yaml:"heading,omitempty"`
	Paragraphs []Block `json:"paragraphs" yaml:"paragraphs"`
	StartIndex int     `json:"start_index" yaml:"start_index"`
}

// Blocks returns the section's heading (when present) followed by its paragraphs.
func (s Section) Blocks() []Block {
	blocks := make([]Block, 0, len(s.Paragraphs)+1)
	if s.Heading != nil {
		blocks = append(blocks, *s.Heading)
	}
	return append(blocks, s.Paragraphs...)
}

// DeriveSections groups document-ordered blocks into display sections.
// Blocks of unknown type are skipped. The input is not modified.
func DeriveSections(blocks []Block) []Section {
	sections := make([]Section, 0)
	var current *Section

	for index, block := range blocks {
		switch block.Type {
		case BlockTypeHeading:
			if current != nil {
				sections = append(sections, *current)
			}
			heading := block
			current = &Section{
				Heading:    &heading,
				Paragraphs: []Block{},
				StartIndex: index,
			}
		case BlockTypeParagraph:
			if current == nil {
				current = &Section{
					Paragraphs: []Block{block},
					StartIndex: index,
				}
				continue
			}
			current.Paragraphs = append(current.Paragraphs, block)
		}
	}

	if current != nil {
		sections = append(sections, *current)
	}
	return sections
}

// SectionTitle is the display title and feedback key of a Word section.
func SectionTitle(index int, section Section) string {
	if section.Heading != nil && section.Heading.Text != "" {
		return section.Heading.Text
	}
	return "Section " + strconv.Itoa(index+1)
}

// SlideTitle is the display title and feedback key of a slide.
func SlideTitle(index int, slide Slide) string {
	if slide.Title != "" {
		return slide.Title
	}
	return "Slide " + strconv.Itoa(index+1)
}

// SectionTitles resolves the titles of every derived section, in order.
func SectionTitles(sections []Section) []string {
	titles := make([]string, len(sections))
	for index, section := range sections {
		titles[index] = SectionTitle(index, section)
	}
	return titles
}

// SlideTitles resolves the titles of every slide, in order.
func SlideTitles(slides []Slide) []string {
	titles := make([]string, len(slides))
	for index, slide := range slides {
		titles[index] = SlideTitle(index, slide)
	}
	return titles
}

// DuplicateTitles lists titles that occur more than once, in first-seen order.
// Feedback for colliding titles shares one backend entry.
func DuplicateTitles(titles []string) []string {
	seen := make(map[string]int, len(titles))
	duplicates := make([]string, 0)
	for _, title := range titles {
		seen[title]++
		if seen[title] == 2 {
			duplicates = append(duplicates, title)
		}
	}
	return duplicates
}
