package gateway

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
)

type projectsResponsePayload struct {
	Projects []documents.Project `json:"projects"`
}

type versionsResponsePayload struct {
	Versions []documents.Version `json:"versions"`
}

type versionResponsePayload struct {
	Version *documents.Version `json:"version"`
}

// ListProjects returns the signed-in user's projects.
func (c *Client) ListProjects(ctx context.Context) ([]documents.Project, error) {
	var payload projectsResponsePayload
	err := c.doJSON(ctx, apiCall{method: http.MethodGet, path: "/projects/my", authenticated: true}, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Projects == nil {
		return []documents.Project{}, nil
	}
	return payload.Projects, nil
}

// ListVersions returns every version of a project.
func (c *Client) ListVersions(ctx context.Context, projectID string) ([]documents.Version, error) {
	var payload versionsResponsePayload
	err := c.doJSON(ctx, apiCall{
		method:        http.MethodGet,
		path:          "/projects/" + url.PathEscape(projectID) + "/versions",
		authenticated: true,
	}, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Versions == nil {
		return []documents.Version{}, nil
	}
	return payload.Versions, nil
}

// GetVersion fetches one version including its content payload.
func (c *Client) GetVersion(ctx context.Context, projectID, versionID string) (documents.Version, error) {
	var payload versionResponsePayload
	path := versionPath(projectID, versionID)
	err := c.doJSON(ctx, apiCall{method: http.MethodGet, path: path, authenticated: true}, &payload)
	if err != nil {
		return documents.Version{}, err
	}
	if payload.Version == nil {
		return documents.Version{}, fmt.Errorf("%w: GET %s: missing version", ErrMalformedResponse, path)
	}
	return *payload.Version, nil
}

type refinePayload struct {
	SectionTitle     string `json:"section_title"`
	RefinementPrompt string `json:"refinement_prompt"`
}

// Refine asks the backend to regenerate one section; the result is a new version.
func (c *Client) Refine(ctx context.Context, projectID, versionID, sectionTitle, prompt string) (documents.Version, error) {
	var payload versionResponsePayload
	err := c.doJSON(ctx, apiCall{
		method:        http.MethodPost,
		path:          versionPath(projectID, versionID) + "/refine",
		body:          refinePayload{SectionTitle: sectionTitle, RefinementPrompt: prompt},
		authenticated: true,
	}, &payload)
	if err != nil {
		return documents.Version{}, err
	}
	if payload.Version == nil {
		return documents.Version{}, nil
	}
	return *payload.Version, nil
}

// Download is an exported document file.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Download exports a version as a .docx or .pptx file.
func (c *Client) Download(ctx context.Context, projectID, versionID string) (Download, error) {
	call := apiCall{
		method:        http.MethodGet,
		path:          versionPath(projectID, versionID) + "/download",
		authenticated: true,
	}
	response, err := c.send(ctx, call)
	if err != nil {
		return Download{}, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return Download{}, &TransportError{Method: call.method, Path: call.path, Err: err}
	}
	return Download{
		Filename:    attachmentFilename(response.Header.Get("Content-Disposition")),
		ContentType: response.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func attachmentFilename(disposition string) string {
	if strings.TrimSpace(disposition) == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
