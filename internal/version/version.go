// Package version holds the release version of the reviewer binaries.
package version

// Current is the release version, without a "v" prefix.
const Current = "0.1.0"

// Name is the program name reported by the CLI and the server.
const Name = "review-insight-pipeline"

// String returns "<name> <version>".
func String() string {
	return Name + " " + Current
}
