package storage

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mockEndpoint = "http://s3.mock.local"
	mockBucket   = "test-bucket"
)

func newMockS3Storage(t *testing.T, mockClient *http.Client) *S3EdzStorage {
	t.Helper()

	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	httpmock.RegisterResponder("HEAD", `=~^http://s3\.mock\.local/test-bucket/?(\?.*)?$`,
		httpmock.NewStringResponder(http.StatusOK, ""))

	s, err := NewS3EdzStorage(context.Background(), S3EdzStorageOpts{
		Bucket:         mockBucket,
		Prefix:         "archives",
		Region:         "us-east-1",
		Endpoint:       mockEndpoint,
		AccessKey:      "test-access-key",
		SecretKey:      "test-secret-key",
		ForcePathStyle: true,
		HTTPClient:     mockClient,
	})
	require.NoError(t, err)
	return s
}

func TestS3StorageStore(t *testing.T) {
	mockClient := &http.Client{}
	httpmock.ActivateNonDefault(mockClient)
	defer httpmock.DeactivateAndReset()

	s := newMockS3Storage(t, mockClient)
	archivePath, want := createTestArchive(t)

	var uploaded []byte
	httpmock.RegisterResponder("PUT", `=~^http://s3\.mock\.local/test-bucket/archives/bundle\.edz`,
		func(req *http.Request) (*http.Response, error) {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			uploaded = body
			resp := httpmock.NewStringResponse(http.StatusOK, "")
			resp.Header.Set("ETag", `"etag"`)
			return resp, nil
		})

	key, err := s.Store(context.Background(), archivePath)
	require.NoError(t, err)
	assert.Equal(t, "archives/bundle.edz", key)
	assert.Equal(t, want, uploaded)
}

func TestS3StorageFetch(t *testing.T) {
	mockClient := &http.Client{}
	httpmock.ActivateNonDefault(mockClient)
	defer httpmock.DeactivateAndReset()

	s := newMockS3Storage(t, mockClient)
	_, want := createTestArchive(t)

	httpmock.RegisterResponder("GET", `=~^http://s3\.mock\.local/test-bucket/archives/bundle\.edz`,
		httpmock.NewBytesResponder(http.StatusOK, want))

	dest := filepath.Join(t.TempDir(), "fetched.edz")
	require.NoError(t, s.Fetch(context.Background(), "bundle.edz", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestS3StorageBucketInaccessible(t *testing.T) {
	mockClient := &http.Client{}
	httpmock.ActivateNonDefault(mockClient)
	defer httpmock.DeactivateAndReset()

	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	t.Setenv("AWS_MAX_ATTEMPTS", "1")

	httpmock.RegisterResponder("HEAD", `=~^http://s3\.mock\.local/test-bucket/?(\?.*)?$`,
		httpmock.NewStringResponder(http.StatusForbidden, ""))

	_, err := NewS3EdzStorage(context.Background(), S3EdzStorageOpts{
		Bucket:         mockBucket,
		Region:         "us-east-1",
		Endpoint:       mockEndpoint,
		AccessKey:      "test-access-key",
		SecretKey:      "test-secret-key",
		ForcePathStyle: true,
		HTTPClient:     mockClient,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access bucket")

	_, err = NewS3EdzStorage(context.Background(), S3EdzStorageOpts{})
	assert.Error(t, err)
}
