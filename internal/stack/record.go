package stack

import (
	"runtime"
	"strconv"
	"strings"
)

type recordOptions struct {
	packagePath  bool
	packageName  bool
	structName   bool
	functionName bool
	fileName     bool
	line         bool
	lambdas      bool
}

type recordOption func(opts *recordOptions)

func PackagePath(b bool) recordOption {
	return func(opts *recordOptions) {
		opts.packagePath = b
	}
}

func PackageName(b bool) recordOption {
	return func(opts *recordOptions) {
		opts.packageName = b
	}
}

func StructName(b bool) recordOption {
	return func(opts *recordOptions) {
		opts.structName = b
	}
}

func FunctionName(b bool) recordOption {
	return func(opts *recordOptions) {
		opts.functionName = b
	}
}

func FileName(b bool) recordOption {
	return func(opts *recordOptions) {
		opts.fileName = b
	}
}

func Line(b bool) recordOption {
	return func(opts *recordOptions) {
		opts.line = b
	}
}

func Lambda(b bool) recordOption {
	return func(opts *recordOptions) {
		opts.lambdas = b
	}
}

type call struct {
	function uintptr
	file     string
	line     int
}

func Call(depth int) (c call) {
	c.function, c.file, c.line, _ = runtime.Caller(depth + 1)

	return c
}

// Record returns caller identification like
// "github.com/org/repo/pkg.(*Struct).Method(file.go:42)".
func Record(depth int, opts ...recordOption) string {
	return Call(depth + 1).Record(opts...)
}

func (c call) Record(opts ...recordOption) string {
	o := recordOptions{
		packagePath:  true,
		packageName:  true,
		structName:   true,
		functionName: true,
		fileName:     true,
		line:         true,
		lambdas:      true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	name := ""
	if fn := runtime.FuncForPC(c.function); fn != nil {
		name = strings.ReplaceAll(fn.Name(), "[...]", "")
	}
	file := c.file
	if i := strings.LastIndex(file, "/"); i > -1 {
		file = file[i+1:]
	}

	pkgPath, pkgName, structName, funcName, lambdas := parseFunctionName(name)

	var b strings.Builder
	if o.packagePath && pkgPath != "" {
		b.WriteString(pkgPath)
	}
	if o.packageName {
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(pkgName)
	}
	if o.structName && structName != "" {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(structName)
	}
	if o.functionName {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(funcName)
		if o.lambdas {
			for i := range lambdas {
				b.WriteByte('.')
				b.WriteString(lambdas[len(lambdas)-i-1])
			}
		}
	}
	if o.fileName {
		closeBrace := b.Len() > 0
		if closeBrace {
			b.WriteByte('(')
		}
		b.WriteString(file)
		if o.line {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(c.line))
		}
		if closeBrace {
			b.WriteByte(')')
		}
	}

	return b.String()
}

func parseFunctionName(name string) (pkgPath, pkgName, structName, funcName string, lambdas []string) {
	if i := strings.LastIndex(name, "/"); i > -1 {
		pkgPath, name = name[:i], name[i+1:]
	}
	split := strings.Split(name, ".")
	lambdas = extractLambdas(split)
	split = split[:len(split)-len(lambdas)]
	if len(split) > 0 {
		pkgName = split[0]
	}
	if len(split) > 1 {
		funcName = split[len(split)-1]
	}
	if len(split) > 2 {
		structName = split[1]
	}

	return pkgPath, pkgName, structName, funcName, lambdas
}

func extractLambdas(split []string) (lambdas []string) {
	lambdas = make([]string, 0, len(split))
	for i := range split {
		elem := split[len(split)-i-1]
		if !strings.HasPrefix(elem, "func") {
			break
		}
		lambdas = append(lambdas, elem)
	}

	return lambdas
}
