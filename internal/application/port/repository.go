package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/workflow"
)

var (
	// ErrNotFound is returned by stores when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when a compare-and-set write lost to a concurrent writer
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicate is returned when an insert collides with a uniqueness constraint
	ErrDuplicate = errors.New("record already exists")
)

// Index names a secondary lookup supported by EntityStore.QueryByIndex
type Index string

const (
	IndexTenant  Index = "tenant"
	IndexVehicle Index = "vehicle"
	IndexClient  Index = "client"
	IndexStatus  Index = "status"
)

// EntityPatch is a partial update applied to an entity. Nil fields are left untouched.
type EntityPatch struct {
	Status *string
	// ClientID set to a pointer to "" clears the reference
	ClientID      *string
	AppendHistory *entity.StatusChange
	UpdatedAt     time.Time
}

// EntityStore is the persistence boundary for deals, vehicles and clients
type EntityStore interface {
	Get(ctx context.Context, kind workflow.Kind, id string) (*entity.Entity, error)
	Insert(ctx context.Context, e *entity.Entity) error

	// Patch applies the patch only if the stored version equals expectedVersion,
	// returning ErrVersionConflict otherwise. The returned entity carries the new version.
	Patch(ctx context.Context, kind workflow.Kind, id string, expectedVersion int64, patch EntityPatch) (*entity.Entity, error)

	QueryByIndex(ctx context.Context, kind workflow.Kind, index Index, value string) ([]*entity.Entity, error)
}

// DocumentRepository defines persistence operations for Document
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	ListByDeal(ctx context.Context, dealID string) ([]*entity.Document, error)

	// UpdateSignatures persists status, collected signatures and FullySignedAt if the
	// stored version equals expectedVersion. On success doc.Version is advanced.
	UpdateSignatures(ctx context.Context, doc *entity.Document, expectedVersion int64) error
}

// SignatureRepository defines persistence operations for Signature
type SignatureRepository interface {
	// Create inserts a signature. A second live signature for the same session
	// fails with ErrDuplicate.
	Create(ctx context.Context, sig *entity.Signature) error
	GetByID(ctx context.Context, id string) (*entity.Signature, error)

	// FindActive returns the non-deleted signature the role gave on the deal, or ErrNotFound
	FindActive(ctx context.Context, dealID string, role entity.SignerRole) (*entity.Signature, error)

	ListPreviewsDue(ctx context.Context, now time.Time, limit int) ([]*entity.Signature, error)

	// ListDueForDeletion returns signatures past their scheduled deletion that are
	// either still live or tombstoned with an image blob left to delete
	ListDueForDeletion(ctx context.Context, now time.Time, limit int) ([]*entity.Signature, error)

	// ClearPreview removes the preview key if still set; it reports whether a row changed
	ClearPreview(ctx context.Context, id string) (bool, error)

	// Tombstone marks the signature deleted and clears its preview key if not already
	// deleted; it reports whether a row changed. The image key is kept until ClearImage.
	Tombstone(ctx context.Context, id string, at time.Time) (bool, error)

	// ClearImage drops the image key once its blob is gone; it reports whether a row changed
	ClearImage(ctx context.Context, id string) (bool, error)
}

// ConsentRepository defines persistence operations for ConsentRecord
type ConsentRepository interface {
	Create(ctx context.Context, record *entity.ConsentRecord) error
	GetByID(ctx context.Context, id string) (*entity.ConsentRecord, error)
	ListByDeal(ctx context.Context, dealID string) ([]*entity.ConsentRecord, error)

	// Revoke sets RevokedAt if not already set; it reports whether a row changed
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
