// Package version reports the build version of the imulink binaries.
package version

import "runtime"

const (
	// DefaultVersion is the version reported when none is set at link time
	DefaultVersion = "0.1.0"
)

// Version can be overridden with -ldflags "-X github.com/billm/imulink/internal/version.Version=..."
var Version = DefaultVersion

// GetVersion returns the version of the binaries
func GetVersion() string {
	if Version == "" {
		return DefaultVersion
	}
	return Version
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() map[string]interface{} {
	return map[string]interface{}{
		"version":    GetVersion(),
		"go_version": runtime.Version(),
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
	}
}
