package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeS3 is a path-style S3 endpoint keeping buckets and objects in memory
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string][]byte
	types    map[string]string
	denyPuts bool
}

func newFakeS3(t *testing.T, buckets ...string) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
	for _, b := range buckets {
		f.buckets[b] = true
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		if f.denyPuts {
			writeS3Error(w, http.StatusForbidden, "AccessDenied")
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = body
		f.types[bucket+"/"+key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		body, ok := f.objects[bucket+"/"+key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+code+`</Code><Message>`+code+`</Message></Error>`)
}

func (f *fakeS3) object(key string) ([]byte, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, f.types[key], ok
}

func (f *fakeS3) hasBucket(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[name]
}

func testRetentionConfig(endpoint string) *config.RetentionConfig {
	return &config.RetentionConfig{
		S3Bucket:    "archive",
		S3Region:    "us-east-1",
		S3Endpoint:  endpoint,
		S3Prefix:    "/batch-jobs/",
		S3AccessKey: "test-key",
		S3SecretKey: "test-secret",
		S3PathStyle: true,
	}
}

func finishedJob(t *testing.T) *integration.BatchJob {
	t.Helper()
	storeID := uuid.New()
	job, err := integration.NewBatchJob([]int64{1, 2, 3}, []uuid.UUID{storeID}, integration.JobOptions{BatchSize: 2})
	require.NoError(t, err)
	job.CreatedAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	job.RecordItem(true)
	job.RecordItem(false)
	job.AppendError(integration.JobError{ItemID: 2, StoreID: &storeID, SKU: "SKU-2", Message: "rejected", At: job.CreatedAt}, 20)
	job.RecordItem(true)
	require.NoError(t, job.Advance(3, job.CreatedAt.Add(time.Minute)))
	return job
}

func TestNewS3JobArchiver_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     *config.RetentionConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "configuration is required"},
		{name: "missing bucket", cfg: &config.RetentionConfig{}, wantErr: "bucket is required"},
		{
			name:    "access key without secret",
			cfg:     &config.RetentionConfig{S3Bucket: "archive", S3AccessKey: "key"},
			wantErr: "must be set together",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3JobArchiver(ctx, tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("valid config", func(t *testing.T) {
		a, err := NewS3JobArchiver(ctx, testRetentionConfig("localhost:9000"), WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.Equal(t, "archive", a.Bucket())
	})
}

func TestS3JobArchiver_Key(t *testing.T) {
	id := uuid.MustParse("6f1c2b9e-8a3d-4c51-9f7e-2d4b6a8c0e13")
	createdAt := time.Date(2026, 1, 31, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))

	a, err := NewS3JobArchiver(context.Background(), testRetentionConfig("http://localhost:9000"))
	require.NoError(t, err)
	assert.Equal(t, "batch-jobs/2026/02/"+id.String()+".json", a.Key(id, createdAt), "months are taken in UTC")

	cfg := testRetentionConfig("http://localhost:9000")
	cfg.S3Prefix = ""
	bare, err := NewS3JobArchiver(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "2026/02/"+id.String()+".json", bare.Key(id, createdAt))
}

func TestS3JobArchiver_EnsureBucket(t *testing.T) {
	fake, srv := newFakeS3(t)
	a, err := NewS3JobArchiver(context.Background(), testRetentionConfig(srv.URL))
	require.NoError(t, err)

	require.NoError(t, a.EnsureBucket(context.Background()))
	assert.True(t, fake.hasBucket("archive"))
	assert.NoError(t, a.EnsureBucket(context.Background()), "existing bucket is fine")
}

func TestS3JobArchiver_ArchiveAndFetch(t *testing.T) {
	fake, srv := newFakeS3(t, "archive")
	a, err := NewS3JobArchiver(context.Background(), testRetentionConfig(srv.URL))
	require.NoError(t, err)
	ctx := context.Background()

	job := finishedJob(t)
	require.NoError(t, a.Archive(ctx, job))

	raw, contentType, ok := fake.object("archive/" + a.Key(job.ID, job.CreatedAt))
	require.True(t, ok, "object stored under the job key")
	assert.Equal(t, "application/json", contentType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, float64(jobDocumentVersion), doc["version"])
	assert.Equal(t, "completed", doc["status"])
	assert.Contains(t, doc, "archived_at")

	t.Run("round trips", func(t *testing.T) {
		got, err := a.Fetch(ctx, job.ID, job.CreatedAt)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.WorkItemIDs, got.WorkItemIDs)
		assert.Equal(t, job.Counters, got.Counters)
		assert.Equal(t, integration.JobStatusCompleted, got.Status)
		require.Len(t, got.RecentErrors, 1)
		assert.Equal(t, "SKU-2", got.RecentErrors[0].SKU)
	})

	t.Run("missing archive", func(t *testing.T) {
		_, err := a.Fetch(ctx, uuid.New(), job.CreatedAt)
		assert.ErrorIs(t, err, ErrArchiveNotFound)
	})

	t.Run("upload failure", func(t *testing.T) {
		fake.mu.Lock()
		fake.denyPuts = true
		fake.mu.Unlock()
		err := a.Archive(ctx, finishedJob(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload job archive")
	})

	t.Run("nil job", func(t *testing.T) {
		assert.Error(t, a.Archive(ctx, nil))
	})
}
