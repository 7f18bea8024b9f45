package tx

import (
	"strings"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/value"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// Statement is a SQL text with named parameters. Parameter names go without the @ prefix.
type Statement struct {
	SQL    string
	Params map[string]any
	// ParamTypes override the types inferred from Params. They are required
	// for NULL values of a specific type.
	ParamTypes map[string]*spannerpb.Type
}

func NewStatement(sql string) Statement {
	return Statement{SQL: sql, Params: make(map[string]any)}
}

func (s Statement) encode() (params *structpb.Struct, types map[string]*spannerpb.Type, _ error) {
	if strings.TrimSpace(s.SQL) == "" {
		return nil, nil, xerrors.WithStackTrace(xerrors.InvalidArgument("empty SQL statement"))
	}
	if len(s.Params) == 0 {
		return nil, nil, nil
	}

	params = &structpb.Struct{Fields: make(map[string]*structpb.Value, len(s.Params))}
	types = make(map[string]*spannerpb.Type, len(s.Params))
	for name, v := range s.Params {
		name = strings.TrimPrefix(name, "@")
		encoded, typ, err := value.Encode(v)
		if err != nil {
			return nil, nil, xerrors.WithStackTrace(xerrors.InvalidArgument("parameter %q: %v", name, err))
		}
		params.Fields[name] = encoded
		if typ != nil {
			types[name] = typ
		}
	}
	for name, typ := range s.ParamTypes {
		types[strings.TrimPrefix(name, "@")] = typ
	}

	return params, types, nil
}
