package types

import (
	"fmt"
	"strings"
)

// FolderPropertyKey is the default resource property holding the parent folder id.
const FolderPropertyKey = "terra-folder-id"

// ResourceKind discriminates cloud resources. Only bucket and object kinds
// can be mounted.
type ResourceKind string

const (
	KindGCSBucket ResourceKind = "gcs-bucket"
	KindGCSObject ResourceKind = "gcs-object"
	KindS3Bucket  ResourceKind = "s3-bucket"
	KindS3Object  ResourceKind = "s3-object"
	KindOther     ResourceKind = "other"
)

// ParseResourceKind normalizes a catalog kind string. Unknown kinds map to
// KindOther rather than failing, since the catalog lists every resource type
// a workspace can hold.
func ParseResourceKind(s string) ResourceKind {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-")) {
	case string(KindGCSBucket):
		return KindGCSBucket
	case string(KindGCSObject):
		return KindGCSObject
	case string(KindS3Bucket), "aws-s3-bucket":
		return KindS3Bucket
	case string(KindS3Object), "aws-s3-storage-folder", "aws-s3-object":
		return KindS3Object
	default:
		return KindOther
	}
}

// IsBucket reports whether the kind denotes a whole bucket.
func (k ResourceKind) IsBucket() bool {
	return k == KindGCSBucket || k == KindS3Bucket
}

// IsObject reports whether the kind denotes an object or prefix inside a bucket.
func (k ResourceKind) IsObject() bool {
	return k == KindGCSObject || k == KindS3Object
}

// Cloud returns "gcs", "s3" or "" for non-mountable kinds.
func (k ResourceKind) Cloud() string {
	switch k {
	case KindGCSBucket, KindGCSObject:
		return "gcs"
	case KindS3Bucket, KindS3Object:
		return "s3"
	default:
		return ""
	}
}

// Resource is a cloud entity listed by the resource directory. It is
// read-only to this module.
type Resource struct {
	ID         string            `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	Kind       ResourceKind      `yaml:"kind" json:"kind"`
	Bucket     string            `yaml:"bucket" json:"bucket"`
	Object     string            `yaml:"object,omitempty" json:"object,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`

	// Directory is the catalog's hint whether an object resource denotes a
	// directory-like prefix. Nil means unknown.
	Directory *bool `yaml:"directory,omitempty" json:"directory,omitempty"`
}

// Property returns a resource property and whether it was set.
func (r Resource) Property(key string) (string, bool) {
	v, ok := r.Properties[key]
	if ok && v == "" {
		return "", false
	}
	return v, ok
}

// CloudID returns the identifier shown in logs, "bucket" or "bucket/object".
func (r Resource) CloudID() string {
	if r.Kind.IsObject() && r.Object != "" {
		return r.Bucket + "/" + r.Object
	}
	return r.Bucket
}

// String implements fmt.Stringer.
func (r Resource) String() string {
	return fmt.Sprintf("%s(%s %s)", r.Name, r.Kind, r.CloudID())
}

// Folder is a node of the workspace folder tree. A folder without a parent
// sits directly under the workspace root.
type Folder struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	ParentID    string `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
}

// HasParent reports whether the folder is nested under another folder.
func (f Folder) HasParent() bool {
	return f.ParentID != ""
}

// MountEntry is one parsed line of the OS mount table.
type MountEntry struct {
	Identifier string
	MountPath  string
	Options    string
}

// IsFUSE reports whether the entry's options name a FUSE-family filesystem.
func (e MountEntry) IsFUSE() bool {
	return strings.Contains(e.Options, "fuse")
}

// MountState is the lifecycle state of a mount point.
type MountState int

const (
	StateUnmounted MountState = iota
	StateMounted
	StateFailed
)

// String returns the string representation of a mount state.
func (s MountState) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounted:
		return "mounted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureReason classifies a failed mount attempt. Each reason owns a fixed
// directory suffix that other tools read, so the suffixes must not change.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailurePermission
	FailureNotFound
	FailureGeneric
)

const (
	SuffixNoAccess    = "_NO_ACCESS"
	SuffixNotFound    = "_NOT_FOUND"
	SuffixMountFailed = "_MOUNT_FAILED"
)

// FailureSuffixes lists every failure suffix in classification order.
var FailureSuffixes = []string{SuffixNoAccess, SuffixNotFound, SuffixMountFailed}

// Suffix returns the directory suffix for the reason.
func (r FailureReason) Suffix() string {
	switch r {
	case FailurePermission:
		return SuffixNoAccess
	case FailureNotFound:
		return SuffixNotFound
	case FailureGeneric:
		return SuffixMountFailed
	default:
		return ""
	}
}

// String returns the string representation of a failure reason.
func (r FailureReason) String() string {
	switch r {
	case FailureNone:
		return "none"
	case FailurePermission:
		return "permission"
	case FailureNotFound:
		return "not-found"
	case FailureGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// ReasonFromName returns the failure reason encoded in a directory name and
// the name with the suffix removed.
func ReasonFromName(name string) (FailureReason, string) {
	for _, r := range []FailureReason{FailurePermission, FailureNotFound, FailureGeneric} {
		if base, ok := strings.CutSuffix(name, r.Suffix()); ok && base != "" {
			return r, base
		}
	}
	return FailureNone, name
}
