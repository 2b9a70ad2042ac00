package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient stores objects in memory.
type fakeClient struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploads  map[string]map[int32][]byte
	nextID   int
	calls    []string
	failPart int32
	abortErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string][]byte), uploads: make(map[string]map[int32][]byte)}
}

func (c *fakeClient) record(call string) {
	c.calls = append(c.calls, call)
}

func (c *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("PutObject")
	c.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeClient) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("CreateMultipartUpload")
	c.nextID++
	id := fmt.Sprintf("upload-%d", c.nextID)
	c.uploads[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (c *fakeClient) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := aws.ToInt32(in.PartNumber)
	c.record(fmt.Sprintf("UploadPart %d", n))
	if n == c.failPart {
		return nil, errors.New("connection reset")
	}
	c.uploads[aws.ToString(in.UploadId)][n] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", n))}, nil
}

func (c *fakeClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("CompleteMultipartUpload")
	parts := c.uploads[aws.ToString(in.UploadId)]
	var buf bytes.Buffer
	for i, p := range in.MultipartUpload.Parts {
		if aws.ToInt32(p.PartNumber) != int32(i+1) {
			return nil, fmt.Errorf("part %d out of order", i)
		}
		buf.Write(parts[aws.ToInt32(p.PartNumber)])
	}
	c.objects[aws.ToString(in.Key)] = buf.Bytes()
	delete(c.uploads, aws.ToString(in.UploadId))
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (c *fakeClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("AbortMultipartUpload")
	if c.abortErr != nil {
		return nil, c.abortErr
	}
	delete(c.uploads, aws.ToString(in.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func openSource(t *testing.T, content []byte) file.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1021_20240307210509.mpg")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	h, err := file.OpenLocal(path, file.ModeRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 253)
	}
	return buf
}

func newExporter(t *testing.T, client *fakeClient, prefix string) *Exporter {
	t.Helper()
	e, err := New(Config{Client: client, Bucket: "media", KeyPrefix: prefix, PartSize: MinPartSize})
	require.NoError(t, err)
	return e
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Bucket: "media"})
	assert.True(t, errors.Is(err, fserrors.ErrConfiguration))

	_, err = New(Config{Client: newFakeClient()})
	assert.True(t, errors.Is(err, fserrors.ErrConfiguration))

	_, err = New(Config{Client: newFakeClient(), Bucket: "media", PartSize: 1024})
	assert.True(t, errors.Is(err, fserrors.ErrConfiguration))

	e, err := New(Config{Client: newFakeClient(), Bucket: "media"})
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultPartSize), e.partSize)
}

func TestExportSmallFileUsesPutObject(t *testing.T) {
	client := newFakeClient()
	e := newExporter(t, client, "recordings")

	res, err := e.Export(context.Background(), openSource(t, []byte("short recording")), "")
	require.NoError(t, err)

	assert.Equal(t, "recordings/1021_20240307210509.mpg", res.Key)
	assert.Equal(t, int64(15), res.Bytes)
	assert.Equal(t, 0, res.Parts)
	assert.Equal(t, []string{"PutObject"}, client.calls)
	assert.Equal(t, "short recording", string(client.objects[res.Key]))
}

func TestExportMultipart(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		parts int
	}{
		{"exact multiple", 2 * MinPartSize, 2},
		{"short last part", 2*MinPartSize + 1234, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			e := newExporter(t, client, "")
			content := pattern(tt.size)

			res, err := e.Export(context.Background(), openSource(t, content), "show.mpg")
			require.NoError(t, err)

			assert.Equal(t, "show.mpg", res.Key)
			assert.Equal(t, int64(tt.size), res.Bytes)
			assert.Equal(t, tt.parts, res.Parts)
			assert.True(t, bytes.Equal(content, client.objects["show.mpg"]))
			assert.Empty(t, client.uploads)
		})
	}
}

func TestExportAbortsOnPartFailure(t *testing.T) {
	client := newFakeClient()
	client.failPart = 2
	e := newExporter(t, client, "")

	_, err := e.Export(context.Background(), openSource(t, pattern(3*MinPartSize)), "show.mpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fserrors.ErrIO))

	assert.Equal(t, []string{"CreateMultipartUpload", "UploadPart 1", "UploadPart 2", "AbortMultipartUpload"}, client.calls)
	assert.Empty(t, client.uploads)
	assert.NotContains(t, client.objects, "show.mpg")
}

func TestExportAbortToleratesNoSuchUpload(t *testing.T) {
	client := newFakeClient()
	client.failPart = 1
	client.abortErr = &types.NoSuchUpload{}
	metrics := &countingMetrics{}
	e, err := New(Config{Client: client, Bucket: "media", PartSize: MinPartSize, Metrics: metrics})
	require.NoError(t, err)

	_, err = e.Export(context.Background(), openSource(t, pattern(MinPartSize+1)), "show.mpg")
	require.Error(t, err)
	assert.Equal(t, []string{"initiated", "aborted"}, metrics.uploads)
}

func TestExportRejectsWriteHandle(t *testing.T) {
	h, err := file.OpenLocal(filepath.Join(t.TempDir(), "out.mpg"), file.ModeWrite)
	require.NoError(t, err)
	defer h.Close()

	e := newExporter(t, newFakeClient(), "")
	_, err = e.Export(context.Background(), h, "")
	assert.True(t, errors.Is(err, fserrors.ErrModeViolation))
}

func TestExportFromCurrentPosition(t *testing.T) {
	client := newFakeClient()
	e := newExporter(t, client, "")
	h := openSource(t, []byte("0123456789"))
	_, err := h.Seek(4, io.SeekStart)
	require.NoError(t, err)

	_, err = e.Export(context.Background(), h, "tail")
	require.NoError(t, err)
	assert.Equal(t, "456789", string(client.objects["tail"]))
}

type countingMetrics struct {
	noopMetrics
	uploads []string
}

func (m *countingMetrics) RecordMultipartUpload(status string) {
	m.uploads = append(m.uploads, status)
}
