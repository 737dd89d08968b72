package version

// Version is the sitebuilder release, injected at link time:
// go build -ldflags "-X git.home.luguber.info/inful/sitebuilder/internal/version.Version=v1.0.0".
var Version = "dev"

// Build metadata, also injected via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by `sitebuilder --version`.
func String() string {
	return "sitebuilder " + Version + " (commit " + GitCommit + ", built " + BuildTime + ")"
}
