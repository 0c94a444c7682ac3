package scan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeRef(t *testing.T) {
	cases := []struct {
		ref  string
		want string
	}{
		{"nginx:1.27", "nginx_1_27"},
		{"registry.example.com/team/app:2.0", "registry_example_com_team_app_2_0"},
		{"busybox", "busybox"},
		{"img@sha256:abc123", "img_sha256_abc123"},
	}
	for _, c := range cases {
		if got := sanitizeRef(c.ref); got != c.want {
			t.Errorf("sanitizeRef(%q) = %q; want %q", c.ref, got, c.want)
		}
	}
}

func TestArtifactWriter_ConstructionDoesNoIO(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	NewArtifactWriter(dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("output directory exists before EnsureDir; stat err = %v", err)
	}
}

func TestArtifactWriter_SharedStamp(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir)
	if err := w.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	benchPath, err := w.WriteBenchmarkRaw([]byte(`{}`))
	if err != nil {
		t.Fatalf("WriteBenchmarkRaw: %v", err)
	}
	imagePath, err := w.WriteImageRaw("nginx:1.27", []byte(`{}`))
	if err != nil {
		t.Fatalf("WriteImageRaw: %v", err)
	}
	reportPath, err := w.WriteReportText("summary")
	if err != nil {
		t.Fatalf("WriteReportText: %v", err)
	}

	stamp := w.Stamp()
	for _, path := range []string{benchPath, imagePath, reportPath} {
		if !strings.Contains(filepath.Base(path), stamp) {
			t.Errorf("artifact %q does not carry run stamp %q", path, stamp)
		}
	}
	if base := filepath.Base(imagePath); !strings.HasPrefix(base, "trivy-nginx_1_27-") {
		t.Errorf("image artifact name = %q; want trivy-nginx_1_27-<stamp>.json", base)
	}
	if base := filepath.Base(reportPath); !strings.HasPrefix(base, "posture-") || !strings.HasSuffix(base, ".txt") {
		t.Errorf("report artifact name = %q; want posture-<stamp>.txt", base)
	}
}
