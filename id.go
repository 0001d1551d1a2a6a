package router

import "github.com/xraph/router/id"

// ID is the primary identifier type for all router entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
