package workspace

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/feedback"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	"github.com/MarcoPoloResearchLab/docstudio/internal/outline"
	"github.com/MarcoPoloResearchLab/docstudio/internal/session"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.uber.org/zap"
)

const minPasswordLength = 6

// Gateway is everything the application needs from the backend client.
type Gateway interface {
	Backend
	feedback.Client
	outline.Suggester
	outline.Generator
	Login(ctx context.Context, email, password string) (gateway.AuthResult, error)
	Signup(ctx context.Context, email, password string) (gateway.AuthResult, error)
	SetUnauthorizedHandler(handler func(ctx context.Context))
}

// AppConfig describes the application's dependencies.
type AppConfig struct {
	Gateway  Gateway
	Sessions session.Store
	Logger   *zap.Logger
	Observer Observer
	Clock    func() time.Time
}

// App is the explicit application state: the session, the navigator, and the feedback it shows.
type App struct {
	gateway   Gateway
	sessions  session.Store
	navigator *Navigator
	feedback  *feedback.Manager
	logger    *zap.Logger
	observer  Observer
	clock     func() time.Time
}

// SignupResult is the outcome of registering an account.
// Session is nil when the backend requires email confirmation before login.
type SignupResult struct {
	User                 gateway.User     `json:"user" yaml:"user"`
	Session              *session.Session `json:"session,omitempty" yaml:"session,omitempty"`
	ConfirmationRequired bool             `json:"confirmation_required" yaml:"confirmation_required"`
}

// NewApp wires the navigator and feedback manager and takes over the gateway's unauthorized hook.
func NewApp(cfg AppConfig) (*App, error) {
	if cfg.Gateway == nil {
		return nil, newServiceError("workspace.app.new", "missing_gateway", ErrInvalidConfig)
	}
	if cfg.Sessions == nil {
		return nil, newServiceError("workspace.app.new", "missing_sessions", ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	manager := feedback.NewManager(cfg.Gateway, logger)
	navigator, err := NewNavigator(NavigatorConfig{
		Backend:  cfg.Gateway,
		Feedback: manager,
		Logger:   logger,
		Observer: cfg.Observer,
		Clock:    clock,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		gateway:   cfg.Gateway,
		sessions:  cfg.Sessions,
		navigator: navigator,
		feedback:  manager,
		logger:    logger,
		observer:  cfg.Observer,
		clock:     clock,
	}
	cfg.Gateway.SetUnauthorizedHandler(app.handleUnauthorized)
	return app, nil
}

// Navigator exposes the project/version navigator.
func (a *App) Navigator() *Navigator {
	return a.navigator
}

// Feedback exposes the feedback manager.
func (a *App) Feedback() *feedback.Manager {
	return a.feedback
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	signup   bool
}

func (c *credentials) Validate() error {
	passwordRules := []validation.Rule{validation.Required}
	if c.signup {
		passwordRules = append(passwordRules, validation.Length(minPasswordLength, 0))
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, passwordRules...),
	)
}

// Login authenticates and persists the session.
func (a *App) Login(ctx context.Context, email, password string) (session.Session, error) {
	input := credentials{Email: strings.TrimSpace(email), Password: password}
	if err := input.Validate(); err != nil {
		return session.Session{}, newServiceError(opLogin, reasonInvalidInput, err)
	}
	result, err := a.gateway.Login(ctx, input.Email, input.Password)
	if err != nil {
		return session.Session{}, newServiceError(opLogin, reasonRequestFailed, err)
	}
	current, err := a.startSession(ctx, opLogin, result)
	if err != nil {
		return session.Session{}, err
	}
	return current, nil
}

// Signup registers an account and, when the backend issued a token, signs in.
func (a *App) Signup(ctx context.Context, email, password string) (SignupResult, error) {
	input := credentials{Email: strings.TrimSpace(email), Password: password, signup: true}
	if err := input.Validate(); err != nil {
		return SignupResult{}, newServiceError(opSignup, reasonInvalidInput, err)
	}
	result, err := a.gateway.Signup(ctx, input.Email, input.Password)
	if err != nil {
		return SignupResult{}, newServiceError(opSignup, reasonRequestFailed, err)
	}
	if result.ConfirmationRequired {
		a.logger.Info("signup requires email confirmation", zap.String("user_id", result.User.ID))
		return SignupResult{User: result.User, ConfirmationRequired: true}, nil
	}
	current, err := a.startSession(ctx, opSignup, result)
	if err != nil {
		return SignupResult{}, err
	}
	return SignupResult{User: result.User, Session: &current}, nil
}

func (a *App) startSession(ctx context.Context, operation string, result gateway.AuthResult) (session.Session, error) {
	current := session.New(result.User.ID, result.User.Email, result.AccessToken)
	if err := a.sessions.Save(ctx, current); err != nil {
		return session.Session{}, newServiceError(operation, reasonSessionFailed, err)
	}
	a.navigator.Close()
	a.logger.Info("signed in", zap.String("user_id", current.UserID))
	a.emit(EventSessionChanged)
	return current, nil
}

// Logout forgets the session and everything loaded under it.
func (a *App) Logout(ctx context.Context) error {
	if err := a.sessions.Clear(ctx); err != nil {
		return newServiceError(opLogout, reasonSessionFailed, err)
	}
	a.navigator.Close()
	a.emit(EventSessionChanged)
	return nil
}

// CurrentSession returns the stored session or session.ErrNoSession.
func (a *App) CurrentSession(ctx context.Context) (session.Session, error) {
	return a.sessions.Load(ctx)
}

// ListProjects returns the signed-in user's projects.
func (a *App) ListProjects(ctx context.Context) ([]documents.Project, error) {
	return a.navigator.ListProjects(ctx)
}

// OpenProject opens one of the user's projects by id and selects its latest version.
func (a *App) OpenProject(ctx context.Context, projectID string) error {
	projects, err := a.navigator.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, project := range projects {
		if project.ID == projectID {
			return a.navigator.OpenProject(ctx, project)
		}
	}
	return newServiceError(opOpenProject, reasonInvalidInput, ErrUnknownProject)
}

// SelectVersion selects a version of the open project.
func (a *App) SelectVersion(ctx context.Context, versionID string) error {
	return a.navigator.SelectVersion(ctx, versionID)
}

// View snapshots the navigator.
func (a *App) View() View {
	return a.navigator.View()
}

// Like records a like for the section or slide at index.
func (a *App) Like(ctx context.Context, index int) error {
	return a.react(ctx, index, a.feedback.Like)
}

// Dislike records a dislike for the section or slide at index.
func (a *App) Dislike(ctx context.Context, index int) error {
	return a.react(ctx, index, a.feedback.Dislike)
}

// Comment records a comment for the section or slide at index.
func (a *App) Comment(ctx context.Context, index int, text string) error {
	return a.react(ctx, index, func(ctx context.Context, projectID, versionID, title string) error {
		return a.feedback.Comment(ctx, projectID, versionID, title, text)
	})
}

func (a *App) react(ctx context.Context, index int, apply func(ctx context.Context, projectID, versionID, title string) error) error {
	target, err := a.navigator.target()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(target.titles) {
		return ErrSectionIndex
	}
	if err := apply(ctx, target.project.ID, target.versionID, target.titles[index]); err != nil {
		return err
	}
	a.emit(EventFeedbackChanged)
	return nil
}

// Refine regenerates the section or slide at index and selects the resulting version.
func (a *App) Refine(ctx context.Context, index int, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return newServiceError(opRefine, reasonInvalidInput, ErrEmptyPrompt)
	}
	title, err := a.navigator.SectionTitle(index)
	if err != nil {
		return newServiceError(opRefine, reasonInvalidInput, err)
	}
	return a.navigator.Refine(ctx, title, prompt)
}

// Download exports the selected version.
func (a *App) Download(ctx context.Context) (gateway.Download, error) {
	return a.navigator.Download(ctx)
}

// SuggestOutline fills the draft's entries with suggestions for its topic.
func (a *App) SuggestOutline(ctx context.Context, draft *outline.Draft) error {
	if err := draft.Suggest(ctx, a.gateway); err != nil {
		if errors.Is(err, outline.ErrMissingTopic) {
			return newServiceError(opSuggest, reasonInvalidInput, err)
		}
		return newServiceError(opSuggest, reasonRequestFailed, err)
	}
	return nil
}

// CreateProject generates a project from the draft, then opens it.
func (a *App) CreateProject(ctx context.Context, draft *outline.Draft) (documents.Project, error) {
	generated, err := draft.Generate(ctx, a.gateway)
	if err != nil {
		var validationErrors validation.Errors
		if errors.As(err, &validationErrors) || errors.Is(err, outline.ErrMalformedRaw) {
			return documents.Project{}, newServiceError(opCreateProject, reasonInvalidInput, err)
		}
		return documents.Project{}, newServiceError(opCreateProject, reasonRequestFailed, err)
	}
	a.logger.Info("project generated",
		zap.String("project_id", generated.Project.ID),
		zap.String("doctype", generated.Project.Doctype.String()),
	)
	if err := a.OpenProject(ctx, generated.Project.ID); err != nil {
		if !errors.Is(err, ErrUnknownProject) {
			return generated.Project, err
		}
		if err := a.navigator.OpenProject(ctx, generated.Project); err != nil {
			return generated.Project, err
		}
	}
	return generated.Project, nil
}

func (a *App) handleUnauthorized(_ context.Context) {
	a.logger.Warn("session rejected by backend; workspace reset")
	a.navigator.Close()
	a.emit(EventUnauthorized)
}

func (a *App) emit(eventType EventType) {
	if a.observer == nil {
		return
	}
	a.observer(Event{Type: eventType, State: a.navigator.State(), Timestamp: a.clock().UTC()})
}
