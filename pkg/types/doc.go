/*
Package types defines the data model shared by the wsmount packages.

Resources and folders come from the workspace resource directory and are
read-only here. MountEntry values are parsed fresh from the OS mount table on
every unmount pass and are never persisted.

# Mount point naming

The directory tree under the workspace root is the only state wsmount keeps.
A plain directory that is an active FUSE mount is a healthy mount. A directory
whose name ends in one of the failure suffixes is a mount attempt that ended
in a known failure class:

	_NO_ACCESS      the mount utility was denied access (FailurePermission)
	_NOT_FOUND      the bucket does not exist (FailureNotFound)
	_MOUNT_FAILED   any other failure (FailureGeneric)

Other tools rely on these names, so they are part of the public contract.
*/
package types
