package reimburse

import "github.com/xraph/reimburse/id"

// ID identifies a fund-journal movement.
type ID = id.ID

// Prefix identifies the movement kind encoded in a TypeID.
type Prefix = id.Prefix
