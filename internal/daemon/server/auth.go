package server

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/grovetools/cowork/errors"
	"github.com/grovetools/cowork/internal/rooms"
	"github.com/grovetools/cowork/util/pathutil"
)

// Header names read by HeaderAuthenticator.
const (
	HeaderUser    = "X-Cowork-User"
	HeaderSession = "X-Cowork-Session"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Identify(r *http.Request) (Identity, error)
}

// DirectoryPolicy decides which working directories callers may target.
type DirectoryPolicy interface {
	Allowed(dir string) bool
}

// ChatStore persists chat messages before they are relayed to a room.
type ChatStore interface {
	Append(ctx context.Context, dir string, msg rooms.Message) error
	// History returns up to limit recent messages, oldest first.
	History(ctx context.Context, dir string, limit int) ([]rooms.Message, error)
	// Clear forgets the directory's messages.
	Clear(ctx context.Context, dir string) error
}

// HeaderAuthenticator trusts identity headers set by a fronting proxy.
// Websocket upgrades may pass the same values as user and session query
// parameters, since browsers cannot set headers on them.
type HeaderAuthenticator struct{}

// Identify implements Authenticator.
func (HeaderAuthenticator) Identify(r *http.Request) (Identity, error) {
	id := Identity{
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUser)),
		SessionID: strings.TrimSpace(r.Header.Get(HeaderSession)),
	}
	if id.UserID == "" {
		id.UserID = strings.TrimSpace(r.URL.Query().Get("user"))
	}
	if id.SessionID == "" {
		id.SessionID = strings.TrimSpace(r.URL.Query().Get("session"))
	}
	if id.UserID == "" {
		return Identity{}, errors.New(errors.ErrCodeUnauthorized, "missing user identity")
	}
	return id, nil
}

// ListPolicy allows absolute directories at or below one of Roots.
// An empty list allows any absolute directory. Symlinks are resolved on
// both sides so a link inside a root cannot reach outside it.
type ListPolicy struct {
	Roots []string
}

// NewListPolicy canonicalizes roots into a ListPolicy.
func NewListPolicy(roots []string) *ListPolicy {
	p := &ListPolicy{}
	for _, root := range roots {
		if root = strings.TrimSpace(root); root == "" {
			continue
		}
		if canon, err := pathutil.Canonical(root); err == nil {
			root = canon
		}
		p.Roots = append(p.Roots, filepath.Clean(root))
	}
	return p
}

// Allowed implements DirectoryPolicy.
func (p *ListPolicy) Allowed(dir string) bool {
	if dir == "" || !filepath.IsAbs(dir) {
		return false
	}
	if len(p.Roots) == 0 {
		return true
	}
	clean, err := pathutil.Canonical(dir)
	if err != nil {
		return false
	}
	for _, root := range p.Roots {
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
