// Package s3 exports files into Amazon S3 or S3-compatible storage.
//
// Any file.Handle can be exported, so recordings are streamed straight from a
// transfer session into a bucket without touching local disk. Files that fit
// in one part are stored with PutObject; larger files use a multipart upload
// that is aborted when any step fails.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/fserrors"
)

const (
	// MinPartSize is the smallest part S3 accepts (except for the last part)
	MinPartSize = 5 * 1024 * 1024

	// DefaultPartSize is used when Config.PartSize is zero
	DefaultPartSize = 10 * 1024 * 1024

	// maxParts is the S3 limit on parts per upload
	maxParts = 10000
)

// Client is the subset of *s3.Client used by the Exporter.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

var _ Client = (*s3.Client)(nil)

// Config contains configuration for an Exporter.
type Config struct {
	// Client is the configured S3 client
	Client Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "recordings/" results in keys like "recordings/1021_2024.mpg"
	KeyPrefix string

	// PartSize is the size of each multipart part (default: 10MB)
	// Must be at least 5MB
	PartSize int64

	// Metrics is optional; nil disables metrics
	Metrics Metrics
}

// Exporter uploads file handles to a bucket. It is safe for concurrent use.
type Exporter struct {
	client    Client
	bucket    string
	keyPrefix string
	partSize  int64
	metrics   Metrics
}

// Result describes a completed export.
type Result struct {
	Key   string
	Bytes int64

	// Parts is 0 when the object was stored with a single PutObject
	Parts int
}

// New creates an Exporter.
func New(cfg Config) (*Exporter, error) {
	if cfg.Client == nil {
		return nil, fserrors.New(fserrors.ConfigurationError, "s3 export", "client is required")
	}
	if cfg.Bucket == "" {
		return nil, fserrors.New(fserrors.ConfigurationError, "s3 export", "bucket is required")
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = DefaultPartSize
	}
	if partSize < MinPartSize {
		return nil, fserrors.Newf(fserrors.ConfigurationError, "s3 export", "part size %d is below the S3 minimum of %d", partSize, MinPartSize)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Exporter{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		partSize:  partSize,
		metrics:   metrics,
	}, nil
}

// ObjectKey returns the object key used for name.
func (e *Exporter) ObjectKey(name string) string {
	if e.keyPrefix == "" {
		return name
	}
	return path.Join(e.keyPrefix, name)
}

// Export reads h from its current position to the end and stores it under
// key. An empty key uses the handle's name.
func (e *Exporter) Export(ctx context.Context, h file.Handle, key string) (Result, error) {
	if err := file.CheckRead(h.Mode(), h.Name()); err != nil {
		return Result{}, err
	}
	if key == "" {
		key = path.Base(h.Name())
	}
	key = e.ObjectKey(key)

	// Step 1: first part decides between PutObject and multipart
	buf := make([]byte, e.partSize)
	n, err := io.ReadFull(h, buf)
	last := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
	if err != nil && !last {
		return Result{}, fmt.Errorf("read %s: %w", h.Name(), err)
	}

	if last {
		if err := e.putObject(ctx, key, buf[:n]); err != nil {
			return Result{}, err
		}
		logger.Info("Exported %s to s3://%s/%s (%d bytes)", h.Name(), e.bucket, key, n)
		return Result{Key: key, Bytes: int64(n)}, nil
	}

	// Step 2: multipart upload of the rest
	res, err := e.multipart(ctx, h, key, buf)
	if err != nil {
		return Result{}, err
	}
	logger.Info("Exported %s to s3://%s/%s (%d bytes, %d parts)", h.Name(), e.bucket, key, res.Bytes, res.Parts)
	return res, nil
}

func (e *Exporter) putObject(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	e.metrics.ObserveOperation("PutObject", time.Since(start), err)
	if err != nil {
		return fserrors.Wrap(fserrors.IOError, "s3 put object", key, err)
	}
	e.metrics.RecordBytes(int64(len(data)))
	return nil
}

// multipart uploads first as part 1 and the rest of h as the following parts.
func (e *Exporter) multipart(ctx context.Context, h file.Handle, key string, first []byte) (res Result, err error) {
	start := time.Now()
	created, err := e.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	e.metrics.ObserveOperation("CreateMultipartUpload", time.Since(start), err)
	if err != nil {
		return Result{}, fserrors.Wrap(fserrors.IOError, "s3 create multipart upload", key, err)
	}
	uploadID := aws.ToString(created.UploadId)
	e.metrics.RecordMultipartUpload("initiated")
	logger.Debug("Multipart upload %s started for %s", uploadID, key)

	defer func() {
		if err != nil {
			e.abort(context.WithoutCancel(ctx), key, uploadID)
		}
	}()

	var parts []types.CompletedPart
	data := first
	for partNumber := int32(1); ; partNumber++ {
		if partNumber > maxParts {
			return Result{}, fserrors.Newf(fserrors.InvalidArgument, "s3 export", "%s needs more than %d parts of %d bytes", key, maxParts, e.partSize)
		}

		etag, err := e.uploadPart(ctx, key, uploadID, partNumber, data)
		if err != nil {
			return Result{}, err
		}
		parts = append(parts, types.CompletedPart{ETag: etag, PartNumber: aws.Int32(partNumber)})
		res.Bytes += int64(len(data))

		n, rerr := io.ReadFull(h, first)
		if n == 0 && (errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF)) {
			break
		}
		if rerr != nil && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return Result{}, fmt.Errorf("read %s: %w", h.Name(), rerr)
		}
		data = first[:n]
	}

	start = time.Now()
	_, err = e.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(e.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	e.metrics.ObserveOperation("CompleteMultipartUpload", time.Since(start), err)
	if err != nil {
		return Result{}, fserrors.Wrap(fserrors.IOError, "s3 complete multipart upload", key, err)
	}
	e.metrics.RecordMultipartUpload("completed")

	res.Key = key
	res.Parts = len(parts)
	return res, nil
}

func (e *Exporter) uploadPart(ctx context.Context, key, uploadID string, partNumber int32, data []byte) (*string, error) {
	start := time.Now()
	out, err := e.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	e.metrics.ObserveOperation("UploadPart", time.Since(start), err)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.IOError, fmt.Sprintf("s3 upload part %d", partNumber), key, err)
	}
	e.metrics.RecordBytes(int64(len(data)))
	return out.ETag, nil
}

// abort cancels an upload. NoSuchUpload is not an error.
func (e *Exporter) abort(ctx context.Context, key, uploadID string) {
	start := time.Now()
	_, err := e.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(e.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	var noSuchUpload *types.NoSuchUpload
	if errors.As(err, &noSuchUpload) {
		err = nil
	}
	e.metrics.ObserveOperation("AbortMultipartUpload", time.Since(start), err)
	if err != nil {
		logger.Warn("Failed to abort multipart upload %s for %s: %v", uploadID, key, err)
		return
	}
	e.metrics.RecordMultipartUpload("aborted")
}
