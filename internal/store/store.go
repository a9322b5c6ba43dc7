package store

import (
	"context"
	"time"

	"github.com/sebcib/codescope/pkg/models"
)

// Store is the capability set both backends implement. The gateway is the
// only caller; nothing above it talks to a backend directly.
//
// Put is an upsert on id. Implementations must make a record visible to
// Get/List only once it is fully written, and must translate driver errors
// into models.ErrNotFound / models.ErrDuplicate or wrapped errors before
// returning.
type Store interface {
	Ping(ctx context.Context) error

	Put(ctx context.Context, rec *models.AnalysisRecord) error
	Get(ctx context.Context, id string) (*models.AnalysisRecord, error)
	List(ctx context.Context, filter ListFilter) ([]models.RecordSummary, error)
	Delete(ctx context.Context, id string) error
	UpdateOrigin(ctx context.Context, id string, origin models.Origin) error

	PutCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context) (*models.Credential, error)
}

// ListFilter narrows a history listing. Zero values mean "no constraint";
// Limit is normalized by implementations (default 50, max 200). Results are
// always ordered by (created_at desc, id desc) so listings have a total
// order regardless of backend.
type ListFilter struct {
	SourceDigest string
	Origin       models.Origin
	Since        time.Time
	Limit        int
	Offset       int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (f ListFilter) normalizedLimit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	if f.Limit > maxListLimit {
		return maxListLimit
	}
	return f.Limit
}

func (f ListFilter) normalizedOffset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}
