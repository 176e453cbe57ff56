package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
)

// Headers set by the gateway in front of the back-office API
const (
	HeaderTenantID          = "X-Tenant-ID"
	HeaderUserID            = "X-User-ID"
	HeaderUserRole          = "X-User-Role"
	HeaderIdentitySignature = "X-Identity-Signature"
)

const actorKey = "dealflow.actor"

// HeaderIdentityProvider resolves the caller from gateway headers. When a
// secret is configured the headers must carry a matching HMAC-SHA256 signature.
type HeaderIdentityProvider struct {
	secret []byte
}

// NewHeaderIdentityProvider creates an identity provider; an empty secret disables signature checks
func NewHeaderIdentityProvider(secret string) *HeaderIdentityProvider {
	p := &HeaderIdentityProvider{}
	if secret != "" {
		p.secret = []byte(secret)
	}
	return p
}

// Resolve returns the actor named by the request headers
func (p *HeaderIdentityProvider) Resolve(r *http.Request) (*entity.Actor, error) {
	tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	role := strings.TrimSpace(r.Header.Get(HeaderUserRole))

	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("%w: missing tenant or user header", port.ErrUnauthenticated)
	}
	if role == "" {
		role = entity.RoleUser
	}
	// The engine's own identity is never accepted from outside
	if role == entity.RoleSystem || userID == entity.SystemActorID {
		return nil, fmt.Errorf("%w: reserved identity", port.ErrUnauthenticated)
	}

	if p.secret != nil {
		given, err := hex.DecodeString(r.Header.Get(HeaderIdentitySignature))
		if err != nil || !hmac.Equal(given, SignIdentity(p.secret, tenantID, userID, role)) {
			return nil, fmt.Errorf("%w: bad identity signature", port.ErrUnauthenticated)
		}
	}

	return &entity.Actor{ID: userID, TenantID: tenantID, Role: role}, nil
}

// SignIdentity computes the signature a gateway attaches to the identity headers
func SignIdentity(secret []byte, tenantID, userID, role string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tenantID + "\n" + userID + "\n" + role))
	return mac.Sum(nil)
}

func authMiddleware(identity port.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity == nil {
			abortWithError(c, port.ErrUnauthenticated)
			return
		}
		actor, err := identity.Resolve(c.Request)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(actorKey, *actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
