package budget

import (
	"errors"
)

// ErrNoQuota is returned when a budget denies a retry attempt.
var ErrNoQuota = errors.New("no retry quota")
