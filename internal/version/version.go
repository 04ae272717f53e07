// Package version holds build-time version information for the pdfrag binary.
// The variables are populated via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/pdfrag-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/pdfrag-go/internal/version.Commit=abc1234"
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String renders the one-line version banner printed by `pdfrag version`.
func String() string {
	return fmt.Sprintf("pdfrag %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
