// Package buildinfo holds build-time metadata injected through -ldflags.
package buildinfo

import "fmt"

const unknown = "unknown"

// BuildInfo provides read access to build metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// Release returns the release name reported to Sentry.
func (c *Context) Release() string {
	return "fretlab@" + c.GetVersion()
}

func (c *Context) String() string {
	return fmt.Sprintf("fretlab %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
