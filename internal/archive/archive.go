// Package archive packs a trained model's four artifacts - configuration,
// weights, metrics and vocabulary - into one portable model.tar.gz container,
// and reverses the process.
//
// Archives are write-once: Pack produces a container that is never mutated,
// only reopened by Unpack in a later process. Extraction is defended against
// path traversal: every member is validated against the extraction root
// before a single byte is written.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dyluth/kiln/internal/model"
	"github.com/dyluth/kiln/internal/params"
)

// Fixed archive-internal member names. These are the container's wire
// format; consumers rely on them.
const (
	ConfigName     = "config.json"
	WeightsName    = "weights.pt"
	MetricsName    = "metrics.json"
	VocabularyName = "vocabulary"

	// DefaultArchiveName is the container file name used when the caller
	// does not name one, or names a directory.
	DefaultArchiveName = "model.tar.gz"

	// weightsSourceName is the weights file name inside a checkpoint
	// directory, as written by the trainer.
	weightsSourceName = "model.pt"
)

// Archive is the in-memory result of unpacking a container: the constructed
// model handle, the configuration tree and the training metrics.
// Model is nil when Unpack was asked to skip model construction.
type Archive struct {
	Model   model.Handle
	Config  params.Params
	Metrics map[string]float64
}

// Pack archives the model weights, training configuration, metrics and
// vocabulary into a model.tar.gz container.
//
// It expects <weightsDir>/model.pt, <weightsDir>/metrics.json,
// <serializationDir>/config.json and <serializationDir>/vocabulary/ to
// exist; all four are checked before any byte is written and a missing one
// yields *MissingArtifactError with no output file produced.
//
// outputPath resolves as: empty -> <serializationDir>/model.tar.gz; an
// existing directory -> model.tar.gz inside it; anything else is used as the
// container path verbatim. The container is written to a temporary file in
// the destination directory and renamed into place, so a crash mid-write
// never leaves a corrupt archive at the final path.
//
// Returns the resolved container path.
func Pack(serializationDir, weightsDir, outputPath string) (string, error) {
	weightsFile := filepath.Join(weightsDir, weightsSourceName)
	metricsFile := filepath.Join(weightsDir, MetricsName)
	configFile := filepath.Join(serializationDir, ConfigName)
	vocabularyDir := filepath.Join(serializationDir, VocabularyName)

	// Check all four artifacts up front - no partial archives.
	for _, artifact := range []struct {
		name string
		path string
		dir  bool
	}{
		{WeightsName, weightsFile, false},
		{MetricsName, metricsFile, false},
		{ConfigName, configFile, false},
		{VocabularyName, vocabularyDir, true},
	} {
		info, err := os.Stat(artifact.path)
		if err != nil || (artifact.dir && !info.IsDir()) {
			return "", &MissingArtifactError{Artifact: artifact.name, Path: artifact.path}
		}
	}

	archiveFile := resolveOutputPath(serializationDir, outputPath)
	log.Printf("[INFO] Archiving model to %s", archiveFile)

	tmpFile := filepath.Join(filepath.Dir(archiveFile),
		fmt.Sprintf(".%s.tmp-%s", filepath.Base(archiveFile), uuid.New().String()[:8]))

	if err := writeContainer(tmpFile, configFile, weightsFile, metricsFile, vocabularyDir); err != nil {
		os.Remove(tmpFile)
		return "", err
	}

	if err := os.Rename(tmpFile, archiveFile); err != nil {
		os.Remove(tmpFile)
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}

	return archiveFile, nil
}

func resolveOutputPath(serializationDir, outputPath string) string {
	if outputPath == "" {
		return filepath.Join(serializationDir, DefaultArchiveName)
	}
	if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
		return filepath.Join(outputPath, DefaultArchiveName)
	}
	return outputPath
}

func writeContainer(path, configFile, weightsFile, metricsFile, vocabularyDir string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	err = func() error {
		if err := addFile(tw, configFile, ConfigName); err != nil {
			return err
		}
		if err := addFile(tw, weightsFile, WeightsName); err != nil {
			return err
		}
		if err := addFile(tw, metricsFile, MetricsName); err != nil {
			return err
		}
		return addTree(tw, vocabularyDir, VocabularyName)
	}()
	if err != nil {
		tw.Close()
		gw.Close()
		out.Close()
		return err
	}

	if err := tw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finalize gzip stream: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync archive file: %w", err)
	}
	return out.Close()
}

func addFile(tw *tar.Writer, path, arcname string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", path, err)
	}
	header.Name = arcname

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", arcname, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("failed to write %s into archive: %w", arcname, err)
	}
	return nil
}

func addTree(tw *tar.Writer, root, arcname string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := arcname
		if rel != "." {
			name = arcname + "/" + filepath.ToSlash(rel)
		}

		if info.IsDir() {
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = name + "/"
			return tw.WriteHeader(header)
		}
		return addFile(tw, path, name)
	})
}

// Unpack opens a container produced by Pack and reconstructs its contents.
//
// If archivePath is a directory the artifacts are read from it in place and
// nothing is extracted or cleaned up. Otherwise the container is extracted
// into a fresh process-private temporary directory, which is removed on
// every exit path - success, parse failure or model-construction failure.
//
// Before extraction, every member's destination is validated against the
// extraction root; any member that would escape it rejects the whole archive
// with *TraversalError and nothing is written (fail closed).
//
// Model construction is delegated to loader; pass a nil loader to read only
// the configuration and metrics (Archive.Model stays nil). device selects
// placement, model.CPUDevice for CPU.
func Unpack(ctx context.Context, archivePath string, loader model.Loader, device int) (*Archive, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive %s: %w", archivePath, err)
	}

	contentDir := archivePath
	if !info.IsDir() {
		tempDir, err := os.MkdirTemp("", "kiln-archive-")
		if err != nil {
			return nil, fmt.Errorf("failed to create extraction directory: %w", err)
		}
		// Temp extraction dirs are removed on every exit path.
		defer func() {
			log.Printf("[DEBUG] Removing temporary extraction dir %s", tempDir)
			os.RemoveAll(tempDir)
		}()

		log.Printf("[INFO] Extracting archive %s to %s", archivePath, tempDir)
		if err := extract(archivePath, tempDir); err != nil {
			return nil, err
		}
		contentDir = tempDir

		return readContents(ctx, contentDir, loader, device)
	}

	return readContents(ctx, contentDir, loader, device)
}

func readContents(ctx context.Context, dir string, loader model.Loader, device int) (*Archive, error) {
	config, err := params.Load(filepath.Join(dir, ConfigName))
	if err != nil {
		return nil, err
	}

	metricsData, err := os.ReadFile(filepath.Join(dir, MetricsName))
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	var metrics map[string]float64
	if err := json.Unmarshal(metricsData, &metrics); err != nil {
		return nil, fmt.Errorf("failed to parse metrics JSON: %w", err)
	}

	archive := &Archive{Config: config, Metrics: metrics}
	if loader == nil {
		return archive, nil
	}

	// Hand the loader a duplicate - it consumes the tree as it builds.
	modelParams := config.Duplicate()
	modelParams.Set(VocabularyName, filepath.Join(dir, VocabularyName))

	handle, err := loader.Load(ctx, modelParams, filepath.Join(dir, WeightsName), device)
	if err != nil {
		return nil, fmt.Errorf("failed to construct model from archive: %w", err)
	}
	archive.Model = handle

	return archive, nil
}

// extract validates every member of the container against root, then
// extracts. Tar is a stream, so validating all members before writing any
// costs a second pass over the compressed data; correctness wins.
func extract(archivePath, root string) error {
	if err := forEachMember(archivePath, func(hdr *tar.Header, _ *tar.Reader) error {
		return validateMember(hdr, root)
	}); err != nil {
		return err
	}

	return forEachMember(archivePath, func(hdr *tar.Header, tr *tar.Reader) error {
		return extractMember(hdr, tr, root)
	})
}

func forEachMember(archivePath string, fn func(*tar.Header, *tar.Reader) error) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to read gzip stream: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar stream: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// validateMember rejects members whose destination (or link target) would
// resolve outside root.
func validateMember(hdr *tar.Header, root string) error {
	if !withinRoot(root, filepath.Join(root, hdr.Name)) {
		return &TraversalError{Member: hdr.Name}
	}

	switch hdr.Typeflag {
	case tar.TypeLink, tar.TypeSymlink:
		target := hdr.Linkname
		if !filepath.IsAbs(target) {
			target = filepath.Join(root, filepath.Dir(hdr.Name), target)
		}
		if !withinRoot(root, target) {
			return &TraversalError{Member: hdr.Name}
		}
	}
	return nil
}

func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..")
}

func extractMember(hdr *tar.Header, tr *tar.Reader, root string) error {
	dest := filepath.Join(root, hdr.Name)

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, 0755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
		}
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", hdr.Name, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
		}
		return out.Close()
	case tar.TypeSymlink:
		return os.Symlink(hdr.Linkname, dest)
	default:
		// Device nodes, fifos and the like have no place in a model
		// archive; skip them.
		log.Printf("[WARN] Skipping unsupported archive member type: %s", hdr.Name)
		return nil
	}
}
