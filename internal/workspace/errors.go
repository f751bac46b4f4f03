package workspace

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleSelection reports a response that arrived after a newer selection replaced it.
	ErrStaleSelection = errors.New("workspace: selection superseded")
	// ErrEmptyPrompt rejects a refinement without instructions.
	ErrEmptyPrompt = errors.New("workspace: refinement prompt required")
	// ErrNoProject reports an operation that needs an open project.
	ErrNoProject = errors.New("workspace: no project open")
	// ErrContentNotReady reports an operation that needs loaded content.
	ErrContentNotReady = errors.New("workspace: content not loaded")
	// ErrUnknownVersion reports a version id that is not in the open project.
	ErrUnknownVersion = errors.New("workspace: unknown version")
	// ErrUnknownProject reports a project id that is not among the user's projects.
	ErrUnknownProject = errors.New("workspace: unknown project")
	// ErrSectionIndex reports a section or slide index outside the loaded content.
	ErrSectionIndex = errors.New("workspace: section index out of range")
	// ErrInvalidConfig reports a workspace built without required dependencies.
	ErrInvalidConfig = errors.New("workspace: invalid config")
)

// ServiceError carries a stable code of the form workspace.<operation>.<reason>.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opListProjects  = "workspace.list_projects"
	opOpenProject   = "workspace.open_project"
	opSelectVersion = "workspace.select_version"
	opRefine        = "workspace.refine"
	opDownload      = "workspace.download"
	opLogin         = "workspace.login"
	opSignup        = "workspace.signup"
	opLogout        = "workspace.logout"
	opCreateProject = "workspace.create_project"
	opSuggest       = "workspace.suggest_outline"

	reasonRequestFailed  = "request_failed"
	reasonDecodeFailed   = "decode_failed"
	reasonSessionFailed  = "session_failed"
	reasonInvalidInput   = "invalid_input"
	reasonReloadFailed   = "reload_failed"
	reasonStaleSelection = "stale_selection"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
