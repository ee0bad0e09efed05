package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Generator is the name written into exported file headers
func Generator() string {
	return "OpenTraceExport " + Version
}
