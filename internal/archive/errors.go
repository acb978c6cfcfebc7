package archive

import "fmt"

// MissingArtifactError reports a pack precondition failure: one of the four
// required artifacts is absent. Pack checks all artifacts before writing any
// byte, so a missing artifact never produces a partial archive.
type MissingArtifactError struct {
	// Artifact is the archive-internal name of the missing artifact
	// (config.json, weights.pt, metrics.json or vocabulary).
	Artifact string

	// Path is where the artifact was expected on disk.
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("missing %s artifact: %s does not exist, unable to archive model", e.Artifact, e.Path)
}

// TraversalError reports an archive member whose path would resolve outside
// the extraction root. The whole archive is rejected before anything is
// written; this is treated as a hostile or corrupt input.
type TraversalError struct {
	// Member is the offending member name as recorded in the archive.
	Member string
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("archive member %q would escape the extraction directory", e.Member)
}
