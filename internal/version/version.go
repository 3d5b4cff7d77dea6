// Package version exposes the application version derived from build
// metadata embedded by the Go toolchain (runtime/debug.BuildInfo), no
// -ldflags required.
package version

import "runtime/debug"

// AppName identifies this binary in version strings and logging.
const AppName = "compression-bench-tasker"

// GitCommit is the short git commit hash (8 chars) from build info, or
// "dev" when build info is unavailable (e.g. go test, non-VCS builds).
var GitCommit = initGitCommit()

func initGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "<app>/<commit>" for use in user-agent strings and logs.
func Full() string {
	return AppName + "/" + GitCommit
}
