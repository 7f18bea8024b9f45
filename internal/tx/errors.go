package tx

import (
	"fmt"

	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
)

// RowNotFoundError is returned by ReadRow when the key matches no row.
type RowNotFoundError struct {
	Table string
	Key   mutation.Key
}

func (e *RowNotFoundError) Error() string {
	return fmt.Sprintf("row not found: table %q, key %v", e.Table, e.Key)
}
