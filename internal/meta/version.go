package meta

import (
	"runtime"
	"strings"

	"google.golang.org/grpc"
)

const (
	VersionMajor = "0"
	VersionMinor = "1"
	VersionPatch = "0"
)

const Version = VersionMajor + "." + VersionMinor + "." + VersionPatch

// apiClient is the x-goog-api-client value identifying this library.
var apiClient = "gl-go/" + strings.TrimPrefix(runtime.Version(), "go") + " gccl/" + Version + " grpc/" + grpc.Version
