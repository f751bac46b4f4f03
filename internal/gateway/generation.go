package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
)

// Generated is the project and first version created by a generation request.
type Generated struct {
	Project documents.Project
	Version documents.Version
}

type generateWordPayload struct {
	MainTopic string   `json:"main_topic"`
	Sections  []string `json:"sections"`
}

type generatePresentationPayload struct {
	Topic  string   `json:"topic"`
	Slides []string `json:"slides"`
}

type generatedResponsePayload struct {
	Project *documents.Project `json:"project"`
	Version *documents.Version `json:"version"`
}

type suggestPayload struct {
	Topic   string `json:"topic"`
	DocType string `json:"doc_type"`
}

type suggestResponsePayload struct {
	Sections []string `json:"sections"`
	Slides   []string `json:"slides"`
}

// GenerateWord creates a Word project from a topic and section headings.
func (c *Client) GenerateWord(ctx context.Context, topic string, sections []string) (Generated, error) {
	return c.generate(ctx, "/generate-word-json", generateWordPayload{MainTopic: topic, Sections: sections})
}

// GeneratePresentation creates a slide deck project from a topic and slide titles.
func (c *Client) GeneratePresentation(ctx context.Context, topic string, slides []string) (Generated, error) {
	return c.generate(ctx, "/generate-ppt-json", generatePresentationPayload{Topic: topic, Slides: slides})
}

func (c *Client) generate(ctx context.Context, path string, body any) (Generated, error) {
	var payload generatedResponsePayload
	err := c.doJSON(ctx, apiCall{method: http.MethodPost, path: path, body: body, authenticated: true}, &payload)
	if err != nil {
		return Generated{}, err
	}
	if payload.Project == nil || payload.Project.ID == "" {
		return Generated{}, fmt.Errorf("%w: POST %s: missing project", ErrMalformedResponse, path)
	}
	generated := Generated{Project: *payload.Project}
	if payload.Version != nil {
		generated.Version = *payload.Version
	}
	return generated, nil
}

// SuggestOutline asks the backend for section headings or slide titles for a topic.
func (c *Client) SuggestOutline(ctx context.Context, topic string, doctype documents.Doctype) ([]string, error) {
	var payload suggestResponsePayload
	err := c.doJSON(ctx, apiCall{
		method:        http.MethodPost,
		path:          "/suggest-outline",
		body:          suggestPayload{Topic: topic, DocType: doctype.OutlineName()},
		authenticated: true,
	}, &payload)
	if err != nil {
		return nil, err
	}
	entries := payload.Slides
	if doctype == documents.DoctypeWord {
		entries = payload.Sections
	}
	if entries == nil {
		return []string{}, nil
	}
	return entries, nil
}
