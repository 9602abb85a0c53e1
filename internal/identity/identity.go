// Package identity projects a signed SSO token into the small identity view
// the chat store consumes: user id, display name, authority tag and raw
// roles. The store never sees tokens; it only reads this projection.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"

	"aiva-chat-client/internal/chat"
)

// DefaultClient is the resource-access client whose roles carry the
// authority tag in the SSO realm.
const DefaultClient = "aiva-peruri"

var ErrInvalidToken = errors.New("identity: invalid token")

// Identity is an immutable snapshot of one authenticated user. It implements
// chat.IdentityInfo.
type Identity struct {
	userID      string
	displayName string
	authority   chat.Authority
	roles       []string
}

func (id *Identity) UserID() string            { return id.userID }
func (id *Identity) DisplayName() string       { return id.displayName }
func (id *Identity) Authority() chat.Authority { return id.authority }
func (id *Identity) Roles() []string           { return append([]string(nil), id.roles...) }

// CanOverrideAuthority reports whether this identity may tag messages with an
// authority other than its own. Only the ADMIN role grants that.
func (id *Identity) CanOverrideAuthority() bool {
	return id.authority == chat.AuthorityAdmin
}

// Static builds an identity without a token, for development and offline use.
func Static(userID string, authority chat.Authority) *Identity {
	if userID == "" {
		userID = "default-user"
	}
	if !authority.Valid() {
		authority = chat.AuthoritySDM
	}
	return &Identity{userID: userID, displayName: userID, authority: authority}
}

// Gate decodes and validates SSO tokens. Decoded identities are cached until
// the token expires, so repeated lookups during one session stay cheap.
type Gate struct {
	secret []byte
	client string
	cache  *gocache.Cache
}

func NewGate(secret, client string) *Gate {
	if client == "" {
		client = DefaultClient
	}
	return &Gate{
		secret: []byte(secret),
		client: client,
		cache:  gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// FromToken verifies the token signature and expiry and returns the identity
// projection. The authority is the first role from the client's resource
// access that belongs to the closed authority set.
func (g *Gate) FromToken(tokenStr string) (*Identity, error) {
	if cached, found := g.cache.Get(tokenStr); found {
		return cached.(*Identity), nil
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	id := &Identity{
		userID:      firstString(claims, "given_name", "preferred_username", "sub"),
		displayName: firstString(claims, "name", "preferred_username"),
		roles:       clientRoles(claims, g.client),
		authority:   chat.AuthoritySDM,
	}
	if id.userID == "" {
		return nil, fmt.Errorf("%w: no user claim", ErrInvalidToken)
	}
	for _, r := range id.roles {
		if a := chat.Authority(r); a.Valid() {
			id.authority = a
			break
		}
	}

	ttl := gocache.DefaultExpiration
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ttl = time.Until(exp.Time)
	}
	if ttl > 0 {
		g.cache.Set(tokenStr, id, ttl)
	}
	return id, nil
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func clientRoles(claims jwt.MapClaims, client string) []string {
	access, ok := claims["resource_access"].(map[string]any)
	if !ok {
		return nil
	}
	entry, ok := access[client].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := entry["roles"].([]any)
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}
