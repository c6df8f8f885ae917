package artifacts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kylegalloway/applyflow/internal/config"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ArtifactsConfig
		wantNil bool
		wantErr bool
	}{
		{"none", config.ArtifactsConfig{Backend: "none"}, true, false},
		{"empty", config.ArtifactsConfig{}, true, false},
		{"local", config.ArtifactsConfig{Backend: "local", Dir: t.TempDir()}, false, false},
		{"minio", config.ArtifactsConfig{Backend: "minio", Endpoint: "localhost:9000", Bucket: "shots"}, false, false},
		{"minio without bucket", config.ArtifactsConfig{Backend: "minio", Endpoint: "localhost:9000"}, true, true},
		{"unknown", config.ArtifactsConfig{Backend: "s3"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (s == nil) != tt.wantNil {
				t.Errorf("Open() store = %v, wantNil %v", s, tt.wantNil)
			}
		})
	}
}

func TestDirPut(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)

	got, err := d.Put(context.Background(), "sess-1/item-2.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want := filepath.Join(root, "sess-1", "item-2.png")
	if got != want {
		t.Errorf("Put() = %q, want %q", got, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "png" {
		t.Errorf("artifact = %q, want png", data)
	}
}

func TestDirPutStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)

	got, err := d.Put(context.Background(), "../../escape.png", []byte("x"), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(got, root) {
		t.Errorf("Put() wrote %q outside %q", got, root)
	}
	if _, err := d.Put(context.Background(), "  ", nil, ""); err == nil {
		t.Error("expected error for empty key")
	}
}

// fakeS3 answers just enough of the S3 API for bucket checks and uploads.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	requests []string
	objects  map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	p := strings.Trim(r.URL.Path, "/")
	bucket, object, _ := strings.Cut(p, "/")
	switch {
	case r.Method == http.MethodHead && object == "":
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && object == "":
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[p] = string(body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newFakeS3(t *testing.T, buckets ...string) (*fakeS3, string) {
	t.Helper()
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}}
	for _, b := range buckets {
		f.buckets[b] = true
	}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, ts.URL
}

func TestMinIOPut(t *testing.T) {
	tests := []struct {
		name       string
		existing   []string
		wantCreate bool
	}{
		{"existing bucket", []string{"shots"}, false},
		{"missing bucket", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, url := newFakeS3(t, tt.existing...)
			m, err := NewMinIO(config.ArtifactsConfig{
				Endpoint:  url,
				Bucket:    "shots",
				Region:    "us-east-1",
				AccessKey: "key",
				SecretKey: "secret",
			})
			if err != nil {
				t.Fatalf("NewMinIO: %v", err)
			}

			got, err := m.Put(context.Background(), "sess-1/item-1.png", []byte("png-bytes"), "image/png")
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if got != "s3://shots/sess-1/item-1.png" {
				t.Errorf("Put() = %q", got)
			}

			fake.mu.Lock()
			defer fake.mu.Unlock()
			if fake.objects["shots/sess-1/item-1.png"] == "" {
				t.Errorf("object not uploaded, requests: %v", fake.requests)
			}
			created := false
			for _, r := range fake.requests {
				if r == "PUT /shots/" || r == "PUT /shots" {
					created = true
				}
			}
			if created != tt.wantCreate {
				t.Errorf("bucket created = %v, want %v (requests: %v)", created, tt.wantCreate, fake.requests)
			}
		})
	}
}

func TestMinIOChecksBucketOnce(t *testing.T) {
	fake, url := newFakeS3(t, "shots")
	m, err := NewMinIO(config.ArtifactsConfig{Endpoint: url, Bucket: "shots", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("NewMinIO: %v", err)
	}
	for _, key := range []string{"a.png", "b.png"} {
		if _, err := m.Put(context.Background(), key, []byte("x"), "image/png"); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	heads := 0
	for _, r := range fake.requests {
		if strings.HasPrefix(r, "HEAD ") {
			heads++
		}
	}
	if heads != 1 {
		t.Errorf("bucket checked %d times, want 1 (requests: %v)", heads, fake.requests)
	}
}
