package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/regbench/internal/common"
)

// fakeBucket serves just enough of the path-style S3 API for reads, deletes and listing.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]string // object key -> body
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/bench"), "/")

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var keys []string
		for k := range b.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>bench</Name>`)
		fmt.Fprintf(&sb, "<Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>", prefix, len(keys))
		for _, k := range keys {
			fmt.Fprintf(&sb, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(b.objects[k]))
		}
		sb.WriteString("</ListBucketResult>")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sb.String()))
	case r.Method == http.MethodGet:
		body, ok := b.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	case r.Method == http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestS3(t *testing.T, objects map[string]string) *S3Storage {
	t.Helper()
	srv := httptest.NewServer(&fakeBucket{objects: objects})
	t.Cleanup(srv.Close)
	s, err := NewS3(context.Background(), common.S3Config{
		Bucket:          "bench",
		Prefix:          "/runs/2024/",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	}, nil)
	require.NoError(t, err)
	return s
}

func TestS3Storage_GetAndList(t *testing.T) {
	s := newTestS3(t, map[string]string{
		"runs/2024/documents/regulation_1.json": `{"tag":"regulation_1"}`,
		"runs/2024/documents/regulation_2.json": `{"tag":"regulation_2"}`,
		"runs/2024/benchmarking_analysis.json":  `{}`,
		"other/documents/regulation_9.json":     `{}`,
	})
	ctx := context.Background()

	got, err := s.Get(ctx, "documents/regulation_1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":"regulation_1"}`, string(got))

	keys, err := s.List(ctx, "documents/")
	require.NoError(t, err)
	assert.Equal(t, []string{"documents/regulation_1.json", "documents/regulation_2.json"}, keys)
}

func TestS3Storage_MissingKeyIsNotFound(t *testing.T) {
	s := newTestS3(t, map[string]string{})
	_, err := s.Get(context.Background(), "benchmarking_analysis_framework.json")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestS3Storage_Delete(t *testing.T) {
	objects := map[string]string{"runs/2024/a.json": "{}"}
	s := newTestS3(t, objects)
	require.NoError(t, s.Delete(context.Background(), "a.json"))
	_, err := s.Get(context.Background(), "a.json")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), common.S3Config{Region: "us-east-1"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
