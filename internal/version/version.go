// Package version holds build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/andy6609/chat-relay/internal/version.Version=1.0.0 \
//	                   -X github.com/andy6609/chat-relay/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
