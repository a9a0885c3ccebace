package buildstage

import "os"

// ArtifactSet is the installable output of the build stage: a host
// directory of package files plus the version they were built as.
// Owned exclusively by the driver for the run's duration.
type ArtifactSet struct {
	// Dir is a temporary host directory holding the .deb files
	Dir string

	// Version is the package version derived from source control
	Version string

	// root is the temporary parent directory the pull landed in; Remove
	// deletes it whole so nothing of the staging layout is left behind.
	root string
}

// Remove deletes the temporary artifact directory.
func (a *ArtifactSet) Remove() error {
	if a == nil {
		return nil
	}
	if a.root != "" {
		return os.RemoveAll(a.root)
	}
	if a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}
