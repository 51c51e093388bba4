package document

import "github.com/rs/xid"

// IdGenerator creates unique ids for document identifiers and version tokens
type IdGenerator interface {
	GenerateUniqueId() string
}

// XidGenerator generates sortable 20 character ids
type XidGenerator struct{}

func (XidGenerator) GenerateUniqueId() string {
	return xid.New().String()
}
