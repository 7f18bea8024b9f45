package tx

import (
	"encoding/base64"
)

// ID is the server-issued transaction id.
type ID []byte

func (id ID) String() string {
	return base64.StdEncoding.EncodeToString(id)
}

func (id ID) Valid() bool {
	return len(id) > 0
}
