package pool

import (
	"errors"
)

var (
	errClosedPool        = errors.New("closed pool")
	errAlreadyClosedPool = errors.New("pool already closed")
	errPoolIsOverflow    = errors.New("pool overflow")
	errItemIsNotAlive    = errors.New("item is not alive")
	errNoProgress        = errors.New("no progress")
)

// IsClosed reports whether err is returned by a closed pool.
func IsClosed(err error) bool {
	return errors.Is(err, errClosedPool) || errors.Is(err, errAlreadyClosedPool)
}
