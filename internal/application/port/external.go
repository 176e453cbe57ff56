package port

import (
	"context"
	"errors"
	"net/http"

	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
)

// ErrUnauthenticated is returned when a request carries no verifiable identity
var ErrUnauthenticated = errors.New("unauthenticated")

// IdentityProvider resolves the caller of a back-office request
type IdentityProvider interface {
	Resolve(r *http.Request) (*entity.Actor, error)
}

// AuditSink records audit events
type AuditSink interface {
	Record(ctx context.Context, evt *event.Event) error
}

// FinalizeRequest identifies a fully signed document to be rendered and sealed
type FinalizeRequest struct {
	TenantID   string
	DealID     string
	DocumentID string
	Signatures map[entity.SignerRole]string
}

// Finalizer produces the final artefact of a fully signed document
type Finalizer interface {
	Finalize(ctx context.Context, req FinalizeRequest) error
}
