package gateway

import (
	"context"
	"net/http"
)

// FeedbackRecord is one stored reaction to a section, keyed by its display title.
type FeedbackRecord struct {
	SectionTitle string  `json:"section_title"`
	Liked        *bool   `json:"liked"`
	Comment      *string `json:"comment"`
}

type feedbackPayload struct {
	SectionTitle string `json:"section_title"`
	Liked        bool   `json:"liked"`
}

type commentPayload struct {
	SectionTitle string `json:"section_title"`
	Comment      string `json:"comment"`
}

type feedbackListPayload struct {
	Feedback []FeedbackRecord `json:"feedback"`
}

// SubmitFeedback upserts the like/dislike flag for a section.
func (c *Client) SubmitFeedback(ctx context.Context, projectID, versionID, sectionTitle string, liked bool) error {
	return c.doJSON(ctx, apiCall{
		method:        http.MethodPost,
		path:          versionPath(projectID, versionID) + "/feedback",
		body:          feedbackPayload{SectionTitle: sectionTitle, Liked: liked},
		authenticated: true,
	}, nil)
}

// AddComment upserts the comment for a section.
func (c *Client) AddComment(ctx context.Context, projectID, versionID, sectionTitle, comment string) error {
	return c.doJSON(ctx, apiCall{
		method:        http.MethodPost,
		path:          versionPath(projectID, versionID) + "/comments",
		body:          commentPayload{SectionTitle: sectionTitle, Comment: comment},
		authenticated: true,
	}, nil)
}

// ListFeedback returns the current user's feedback for a version.
func (c *Client) ListFeedback(ctx context.Context, projectID, versionID string) ([]FeedbackRecord, error) {
	var payload feedbackListPayload
	err := c.doJSON(ctx, apiCall{
		method:        http.MethodGet,
		path:          versionPath(projectID, versionID) + "/feedback",
		authenticated: true,
	}, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Feedback == nil {
		return []FeedbackRecord{}, nil
	}
	return payload.Feedback, nil
}
