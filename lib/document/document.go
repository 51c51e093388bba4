package document

import (
	"context"
	"github.com/ValentinKolb/dDoc/lib/session"
)

// Document is a singleton object cached under one key per type.
// Implementations are pointer types, usually embedding Base.
type Document interface {
	GetIdentifier() string
	SetIdentifier(id string)
}

// Base implements Document and is meant to be embedded
type Base struct {
	Identifier string `json:"identifier"`
}

func (b *Base) GetIdentifier() string {
	return b.Identifier
}

func (b *Base) SetIdentifier(id string) {
	b.Identifier = id
}

// UnitOfWork is the part of a session the managers register with
type UnitOfWork interface {
	ID() string
	Item(key string, create func() any) any
	AfterCommitSuccess(key string, fn session.Callback) error
}

// Store reads the durable copy of a document
type Store interface {
	Load(key string) (data []byte, version string, found bool, err error)
}

// StagingUnitOfWork is a unit of work that also stages durable writes
type StagingUnitOfWork interface {
	UnitOfWork
	Store
	Save(key string, data []byte, expectedVersion string, checkConcurrency bool) (version string, err error)
}

// UpdateFunc receives the current document and returns the updated one
type UpdateFunc[T Document] func(ctx context.Context, current T) (T, error)

// AfterUpdateFunc is called with the document after it was written
type AfterUpdateFunc[T Document] func(ctx context.Context, document T) error
