package xerrors

import (
	"strconv"
	"strings"
)

// Join combines the non-nil errors. It returns nil when there are none and
// the error itself when there is exactly one.
func Join(errs ...error) error {
	var joined joinErrors
	for _, err := range errs {
		if err != nil {
			joined = append(joined, err)
		}
	}
	switch len(joined) {
	case 0:
		return nil
	case 1:
		return joined[0]
	default:
		return joined
	}
}

type joinErrors []error

func (errs joinErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = strconv.Quote(err.Error())
	}

	return "[" + strings.Join(msgs, ",") + "]"
}

func (errs joinErrors) Unwrap() []error {
	return errs
}
