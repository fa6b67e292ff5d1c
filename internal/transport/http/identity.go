package http

import (
	"net/http"

	"contest-service/internal/domain"
)

// IdentityResolver yields the caller's identity. A nil user with a nil
// error means the caller is anonymous; authentication itself is owned by
// an external identity provider.
type IdentityResolver interface {
	Resolve(r *http.Request) (*domain.User, error)
}

// UserRegistrar records identities seen by the transport so leaderboards
// can attach display names later.
type UserRegistrar interface {
	Register(user domain.User)
}

// HeaderIdentity trusts identity headers injected by an authenticating
// gateway in front of the service. Websocket clients cannot always set
// headers, so the same fields are accepted as query parameters.
type HeaderIdentity struct{}

func NewHeaderIdentity() HeaderIdentity {
	return HeaderIdentity{}
}

func (HeaderIdentity) Resolve(r *http.Request) (*domain.User, error) {
	id := firstNonEmpty(r.Header.Get("X-User-Id"), r.URL.Query().Get("userId"))
	if id == "" {
		return nil, nil
	}
	name := firstNonEmpty(r.Header.Get("X-User-Name"), r.URL.Query().Get("userName"))
	role := firstNonEmpty(r.Header.Get("X-User-Role"), r.URL.Query().Get("userRole"))
	return &domain.User{
		ID:          id,
		Username:    name,
		DisplayName: name,
		Role:        parseRole(role),
	}, nil
}

func parseRole(raw string) domain.Role {
	switch domain.Role(raw) {
	case domain.RoleAdmin:
		return domain.RoleAdmin
	case domain.RoleVIP:
		return domain.RoleVIP
	default:
		return domain.RoleNormal
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
