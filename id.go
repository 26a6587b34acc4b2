package streamlock

import "github.com/blicence/streamlock/id"

// ID is the primary identifier type for all StreamLock entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
