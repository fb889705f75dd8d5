package encxorm

import "fmt"

// Version of the encxorm module.
const Version = "0.3.0"

// Build information, set with -ldflags "-X github.com/hengadev/encxorm.GitCommit=...".
var (
	GitCommit string
	BuildDate string
)

// VersionInfo returns the version line printed by the operator CLI.
func VersionInfo() string {
	if GitCommit == "" {
		return fmt.Sprintf("encxorm v%s", Version)
	}
	commit := GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("encxorm v%s (commit: %s, built: %s)", Version, commit, BuildDate)
}
