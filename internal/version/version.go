// Package version holds the crm-assist release version.
package version

// Current is bumped on every release. No "v" prefix.
const Current = "0.1.0"
