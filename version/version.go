package version

import (
	"fmt"
	"runtime"
)

var (
	// Package is filled at linking time.
	Package = "github.com/minyk/dcos-metrics"

	// Version holds the complete version number. Filled in at linking time.
	Version = "0.1.0+unknown"

	// GitCommit is filled with the Git revision being used to build the
	// program at linking time.
	GitCommit = ""
)

// PrintVersion prints the version to stdout.
func PrintVersion() {
	fmt.Printf("%s %s %s go/%s\n", Package, Version, GitCommit, runtime.Version())
}
