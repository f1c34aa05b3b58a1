// Package platform holds the host-specific parts of mounting: how a line of
// `mount` output is laid out, which command unmounts a FUSE mount, and how
// that command reports a path that is not mounted.
//
// The set of platforms is closed. A Platform is chosen once per process with
// Detect and then passed to the components that need it.
package platform

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
)

// ListMountsCommand lists the mount table on every supported platform.
const ListMountsCommand = "mount"

// Platform is a supported host OS family.
type Platform int

const (
	// Unsupported is the zero value. Every command lookup on it fails.
	Unsupported Platform = iota
	// MacLike covers macOS with macFUSE.
	MacLike
	// LinuxLike covers Linux with fusermount.
	LinuxLike
)

// MacLike: "bucket on /Users/me/workspace/bucket (macfuse, nodev, nosuid, ...)"
var macEntryPattern = regexp.MustCompile(`^(\S+) on (.+?) \((.+)\)$`)

// LinuxLike: "bucket on /home/me/workspace/bucket type fuse.gcsfuse (rw,nosuid,...)"
var linuxEntryPattern = regexp.MustCompile(`^(\S+) on (.+?) type (\S+ \(.*\))$`)

// Detect maps runtime.GOOS onto a Platform.
func Detect() Platform {
	return FromGOOS(runtime.GOOS)
}

// FromGOOS maps a GOOS value onto a Platform.
func FromGOOS(goos string) Platform {
	switch goos {
	case "darwin":
		return MacLike
	case "linux":
		return LinuxLike
	default:
		return Unsupported
	}
}

// String returns the string representation of the platform
func (p Platform) String() string {
	switch p {
	case MacLike:
		return "mac"
	case LinuxLike:
		return "linux"
	default:
		return "unsupported"
	}
}

// Supported reports whether commands can be built for p.
func (p Platform) Supported() bool {
	return p == MacLike || p == LinuxLike
}

// Check returns a fatal UNSUPPORTED_PLATFORM error for Unsupported.
func (p Platform) Check() error {
	if p.Supported() {
		return nil
	}
	return p.unsupported("mount")
}

func (p Platform) unsupported(operation string) error {
	return errors.Newf(errors.ErrCodeUnsupportedPlatform,
		"unsupported operating system %q for %s", runtime.GOOS, operation).
		WithComponent("platform").
		WithOperation(operation)
}

// ParseMountEntry parses one line of `mount` output. ok is false for lines
// that do not match the platform's layout; the mount table legitimately
// holds many such lines.
func (p Platform) ParseMountEntry(line string) (entry types.MountEntry, ok bool) {
	var pattern *regexp.Regexp
	switch p {
	case MacLike:
		pattern = macEntryPattern
	case LinuxLike:
		pattern = linuxEntryPattern
	default:
		return types.MountEntry{}, false
	}

	m := pattern.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return types.MountEntry{}, false
	}
	return types.MountEntry{
		Identifier: m[1],
		MountPath:  strings.TrimSpace(m[2]),
		Options:    m[3],
	}, true
}

// ParseMountTable parses every line and drops the ones that do not match.
func (p Platform) ParseMountTable(lines []string) []types.MountEntry {
	entries := make([]types.MountEntry, 0, len(lines))
	for _, line := range lines {
		if entry, ok := p.ParseMountEntry(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// UnmountCommand returns the command and arguments that unmount path.
func (p Platform) UnmountCommand(path string) (string, []string, error) {
	switch p {
	case MacLike:
		return "umount", []string{path}, nil
	case LinuxLike:
		return "fusermount", []string{"-u", path}, nil
	default:
		return "", nil, p.unsupported("unmount")
	}
}

// notMountedMessage is what the unmount command prints for a path that is
// not a mount point.
func (p Platform) notMountedMessage() string {
	switch p {
	case MacLike:
		return "not currently mounted"
	case LinuxLike:
		return "not found in"
	default:
		return ""
	}
}

// IsNotMountedError reports whether stderr from UnmountCommand says the path
// was not mounted in the first place.
func (p Platform) IsNotMountedError(stderr string) bool {
	msg := p.notMountedMessage()
	return msg != "" && strings.Contains(stderr, msg)
}
