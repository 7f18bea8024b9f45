package value

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json/jsontext"
)

var errTrailingJSON = errors.New("unexpected data after top-level JSON value")

// decodeJSON parses a JSON document into maps, slices and scalars. Integer
// literals that fit int64 become int64, wider integers stay as their raw
// jsontext.Value literal and all other numbers become float64, so no integer
// is rounded through float64.
func decodeJSON(s string) (any, error) {
	dec := jsontext.NewDecoder(strings.NewReader(s))
	doc, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.ReadToken(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, err
		}

		return nil, errTrailingJSON
	}

	return doc, nil
}

func decodeJSONValue(dec *jsontext.Decoder) (any, error) {
	switch dec.PeekKind() {
	case '{':
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		obj := make(map[string]any)
		for dec.PeekKind() != '}' {
			name, err := dec.ReadToken()
			if err != nil {
				return nil, err
			}
			v, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			obj[name.String()] = v
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}

		return obj, nil
	case '[':
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		arr := make([]any, 0)
		for dec.PeekKind() != ']' {
			v, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}

		return arr, nil
	case '0':
		raw, err := dec.ReadValue()
		if err != nil {
			return nil, err
		}

		return jsonNumber(raw.Clone())
	default:
		tok, err := dec.ReadToken()
		if err != nil {
			return nil, err
		}
		switch tok.Kind() {
		case 'n':
			return nil, nil
		case 't', 'f':
			return tok.Bool(), nil
		default:
			return tok.String(), nil
		}
	}
}

func jsonNumber(raw jsontext.Value) (any, error) {
	lit := string(raw)
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return i, nil
		}

		return raw, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, err
	}

	return f, nil
}
