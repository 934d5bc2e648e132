// Package reqctx carries the per-request state threaded through the
// middleware pipeline: identity, attribution, the parsed body and the error
// record, together with the closed set of auth and response capabilities.
package reqctx

import (
	"context"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/response"
)

type AuthProvider interface {
	Resolve(r *http.Request) domain.AuthResult
	Issue(ctx context.Context, w http.ResponseWriter, userID string, permissions []domain.Permission) (*domain.SessionToken, error)
	Clear(w http.ResponseWriter)
}

type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

func (u UTM) Empty() bool {
	return u == UTM{}
}

type ErrorRecord struct {
	Status  int
	Kind    domain.ErrorKind
	Message string
	Err     error
}

type Context struct {
	RequestID string
	ClientIP  string
	UTM       UTM
	Body      map[string]any
	User      *domain.SessionToken
	Error     *ErrorRecord

	w      chimiddleware.WrapResponseWriter
	r      *http.Request
	auth   AuthProvider
	logger *slog.Logger

	resolved   bool
	authResult domain.AuthResult
}

func New(w chimiddleware.WrapResponseWriter, r *http.Request, auth AuthProvider, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{w: w, r: r, auth: auth, logger: logger}
}

type contextKey struct{}

func With(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

func From(ctx context.Context) *Context {
	rc, _ := ctx.Value(contextKey{}).(*Context)
	return rc
}

func (c *Context) Logger() *slog.Logger { return c.logger }

func (c *Context) SetLogger(l *slog.Logger) { c.logger = l }

func (c *Context) Writer() http.ResponseWriter { return c.w }

func (c *Context) Status() int {
	if c.w == nil {
		return 0
	}
	return c.w.Status()
}

// ResolveAuth resolves the session cookie once per request; later calls
// return the cached result.
func (c *Context) ResolveAuth() domain.AuthResult {
	if c.resolved {
		return c.authResult
	}
	c.resolved = true
	if c.auth == nil {
		c.authResult = domain.AuthResult{Err: domain.Internal("resolve session", errNoAuthProvider)}
		return c.authResult
	}
	c.authResult = c.auth.Resolve(c.r)
	if c.authResult.Authenticated() {
		c.User = c.authResult.User
	}
	return c.authResult
}

// SetAuthCookie issues a new session for the user and attaches its cookie.
func (c *Context) SetAuthCookie(ctx context.Context, userID string, permissions []domain.Permission) (*domain.SessionToken, error) {
	if c.auth == nil {
		return nil, domain.Internal("issue session", errNoAuthProvider)
	}
	token, err := c.auth.Issue(ctx, c.w, userID, permissions)
	if err != nil {
		return nil, err
	}
	c.User = token
	c.resolved = true
	c.authResult = domain.AuthResult{User: token}
	return token, nil
}

func (c *Context) ClearAuthCookie() {
	if c.auth != nil {
		c.auth.Clear(c.w)
	}
}

// RespondError answers with err's own message when it is benign and with
// fallback otherwise. Either way the error is logged and recorded.
func (c *Context) RespondError(fallback string, status int, err error) {
	rec := &ErrorRecord{Status: status, Kind: domain.ErrorKindInternal, Message: fallback, Err: err}
	if benign, ok := domain.AsBenign(err); ok {
		rec.Kind = domain.ErrorKindBenign
		rec.Message = benign.Message
		c.logger.Warn(rec.Message, "status", status, "path", c.r.URL.Path)
	} else {
		c.logger.Error(fallback, "status", status, "path", c.r.URL.Path, "error", err)
	}
	c.Error = rec
	response.Error(c.w, c.r, status, rec.Message)
}

func (c *Context) RespondMessage(status int, message string) {
	response.Message(c.w, c.r, status, message)
}

func (c *Context) RespondJSON(status int, data any) {
	response.JSON(c.w, c.r, status, data)
}
