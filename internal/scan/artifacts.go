// Package scan wraps the optional external scanner binaries (CIS benchmark,
// image vulnerability) behind capability checks and translates their JSON
// output into findings. Scanners degrade, never abort: an absent binary, a
// timeout or a non-zero exit becomes an INFO finding and the run continues.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// nonWordPattern matches every character that is unsafe in an artifact file
// name; image references are flattened through it
// ("nginx:1.27" → "nginx_1_27").
var nonWordPattern = regexp.MustCompile(`\W+`)

// ArtifactWriter persists the raw per-run artifacts (scanner JSON, report
// text) under one output directory with a shared run timestamp. Construction
// performs no I/O; the directory is created by EnsureDir so a run that fails
// before producing evidence leaves nothing on disk.
type ArtifactWriter struct {
	dir   string
	stamp string
}

// NewArtifactWriter returns a writer rooted at dir. The run timestamp is
// fixed at construction so every artifact of one run shares it.
func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{
		dir:   dir,
		stamp: time.Now().UTC().Format("20060102-150405"),
	}
}

// Dir returns the output directory this writer is rooted at.
func (w *ArtifactWriter) Dir() string { return w.dir }

// Stamp returns the shared run timestamp used in artifact file names.
func (w *ArtifactWriter) Stamp() string { return w.stamp }

// EnsureDir creates the output directory. An uncreatable directory is a
// fatal precondition for the run, so the error carries the path.
func (w *ArtifactWriter) EnsureDir() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %q: %w", w.dir, err)
	}
	return nil
}

// WriteBenchmarkRaw persists the raw benchmark scanner output as
// kube-bench-<stamp>.json and returns the written path.
func (w *ArtifactWriter) WriteBenchmarkRaw(data []byte) (string, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("kube-bench-%s.json", w.stamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write benchmark artifact %q: %w", path, err)
	}
	return path, nil
}

// WriteImageRaw persists one image's raw vulnerability scanner output as
// trivy-<sanitized-ref>-<stamp>.json and returns the written path.
func (w *ArtifactWriter) WriteImageRaw(imageRef string, data []byte) (string, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("trivy-%s-%s.json", sanitizeRef(imageRef), w.stamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image scan artifact %q: %w", path, err)
	}
	return path, nil
}

// WriteReportText persists the rendered report as posture-<stamp>.txt and
// returns the written path.
func (w *ArtifactWriter) WriteReportText(content string) (string, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("posture-%s.txt", w.stamp))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write report file %q: %w", path, err)
	}
	return path, nil
}

// sanitizeRef flattens an image reference into a file-name-safe token.
func sanitizeRef(ref string) string {
	return nonWordPattern.ReplaceAllString(ref, "_")
}
