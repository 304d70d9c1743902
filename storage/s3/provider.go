// Package s3 implements storage.Provider against AWS S3 or any
// S3-compatible service, per spec §4.1's S3 backend specifics. Object key
// is {owner_id}/{file_id}; multipart state is S3's own, end to end — the
// upload id and part etags returned to callers are S3's verbatim.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-logr/logr"

	"github.com/vaultdrive/vaultdrive/bytelimit"
	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

// MaxObjectSize is the largest single object S3 accepts.
const MaxObjectSize = 5 * 1024 * 1024 * 1024 * 1024 // 5TB

// listPageSize bounds a single ListObjectsV2 page when walking an owner's
// objects for DeleteUserData / GetUserStorageSize.
const listPageSize = 1000

// Provider is the S3 backend. It talks to exactly one bucket; unlike the
// local backend it needs no chunk directory of its own because S3's
// multipart upload already tracks part state for us.
type Provider struct {
	logger logr.Logger
	client API
	bucket string

	// uploadBytesPerSec caps Save/UploadPart throughput; 0 disables it.
	uploadBytesPerSec float64

	// temporaryDirectory is where incoming streams are buffered to disk
	// before being handed to the SDK, which needs a ReadSeeker to compute
	// content length and checksums without reading the body twice.
	temporaryDirectory string
}

// NewProvider constructs an S3 backend from cfg.
func NewProvider(cfg ClientConfig, logger logr.Logger) *Provider {
	return &Provider{
		logger:            logger.WithName("storage.s3"),
		client:            newAPIClient(cfg),
		bucket:            cfg.BucketName,
		uploadBytesPerSec: cfg.UploadBytesPerSecLimit,
	}
}

// NewProviderWithClient lets tests substitute a fake API implementation.
func NewProviderWithClient(bucket string, client API, logger logr.Logger) *Provider {
	return &Provider{
		logger: logger.WithName("storage.s3"),
		client: client,
		bucket: bucket,
	}
}

func objectKey(ownerID, fileID string) string {
	return ownerID + "/" + fileID
}

// bufferToTemp drains stream (capped at maxSize via bytelimit) to a
// temporary file and returns it positioned at offset 0, so the SDK can seek
// it to compute content length and checksums without buffering in memory.
func (p *Provider) bufferToTemp(stream io.Reader, maxSize int64) (file *os.File, size int64, err error) {
	if file, err = os.CreateTemp(p.temporaryDirectory, "vaultdrive-s3-*"); err != nil {
		return
	}
	limited := bytelimit.New(stream, maxSize)
	limited.SetRateLimit(p.uploadBytesPerSec)
	if size, err = io.Copy(file, limited); err != nil {
		cleanUpTempFile(file)
		return nil, 0, err
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		cleanUpTempFile(file)
		return nil, 0, err
	}
	return
}

func cleanUpTempFile(file *os.File) {
	_ = file.Close()
	_ = os.Remove(file.Name())
}

func (p *Provider) Save(ctx context.Context, ownerID, fileID string, stream io.Reader, maxSize int64) (actualBytes int64, err error) {
	file, size, err := p.bufferToTemp(stream, maxSize)
	if err != nil {
		if xfererr.Is(err, xfererr.OversizeStream) {
			return 0, err
		}
		return 0, xfererr.Wrap(xfererr.ProviderTransient, err)
	}
	defer cleanUpTempFile(file)

	key := objectKey(ownerID, fileID)
	_, err = p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return 0, classifyErr(err)
	}
	return size, nil
}

func (p *Provider) GetResponse(ctx context.Context, ownerID, fileID string, byteRange *storage.Range) (storage.RangedObject, error) {
	key := objectKey(ownerID, fileID)
	input := &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if byteRange != nil && !(byteRange.Start == 0 && byteRange.End == 0) {
		input.Range = aws.String(httpRange(byteRange.Start, byteRange.End))
	}

	out, err := p.client.GetObject(ctx, input)
	if err != nil {
		if isAwsError[*types.NoSuchKey](err) || isAwsErrorCode(err, "NoSuchKey") {
			return storage.RangedObject{}, xfererr.New(xfererr.NotFound, "object not found")
		}
		return storage.RangedObject{}, classifyErr(err)
	}

	length := int64(0)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return storage.RangedObject{Reader: out.Body, ContentLength: length}, nil
}

func (p *Provider) Delete(ctx context.Context, ownerID, fileID string) error {
	_, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(ownerID, fileID)),
	})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

func (p *Provider) Exists(ctx context.Context, ownerID, fileID string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(ownerID, fileID)),
	})
	if err != nil {
		if isAwsError[*types.NotFound](err) || isAwsErrorCode(err, "NotFound") {
			return false, nil
		}
		return false, classifyErr(err)
	}
	return true, nil
}

func (p *Provider) InitiateMultipart(ctx context.Context, ownerID, fileID string) (string, error) {
	out, err := p.client.CreateMultipartUpload(ctx, &awss3.CreateMultipartUploadInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(ownerID, fileID)),
	})
	if err != nil {
		return "", classifyErr(err)
	}
	return aws.ToString(out.UploadId), nil
}

func (p *Provider) UploadPart(ctx context.Context, ownerID, fileID, uploadID string, partNumber int32, stream io.Reader, maxSize int64) (storage.UploadedPart, error) {
	file, size, err := p.bufferToTemp(stream, maxSize)
	if err != nil {
		if xfererr.Is(err, xfererr.OversizeStream) {
			return storage.UploadedPart{}, err
		}
		return storage.UploadedPart{}, xfererr.Wrap(xfererr.ProviderTransient, err)
	}
	defer cleanUpTempFile(file)

	out, err := p.client.UploadPart(ctx, &awss3.UploadPartInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(objectKey(ownerID, fileID)),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          file,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return storage.UploadedPart{}, classifyErr(err)
	}

	return storage.UploadedPart{
		PartNumber:  partNumber,
		ETag:        aws.ToString(out.ETag),
		ActualBytes: size,
	}, nil
}

func (p *Provider) CompleteMultipart(ctx context.Context, ownerID, fileID, uploadID string, parts []storage.Part) error {
	sorted := make([]storage.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completed := make([]types.CompletedPart, len(sorted))
	for i, part := range sorted {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(part.PartNumber),
			ETag:       aws.String(part.ETag),
		}
	}

	_, err := p.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
		Bucket:   aws.String(p.bucket),
		Key:      aws.String(objectKey(ownerID, fileID)),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		if isAwsErrorCode(err, "InvalidPart") {
			return xfererr.Wrap(xfererr.BadChunkSet, err)
		}
		return classifyErr(err)
	}
	return nil
}

func (p *Provider) AbortMultipart(ctx context.Context, ownerID, fileID, uploadID string) error {
	_, err := p.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
		Bucket:   aws.String(p.bucket),
		Key:      aws.String(objectKey(ownerID, fileID)),
		UploadId: aws.String(uploadID),
	})
	if err != nil && !isAwsError[*types.NoSuchUpload](err) && !isAwsErrorCode(err, "NoSuchUpload") {
		return classifyErr(err)
	}
	return nil
}

// DeleteUserData removes every object under ownerID's prefix, paginating
// with the continuation token S3 hands back for large listings.
func (p *Provider) DeleteUserData(ctx context.Context, ownerID string) error {
	prefix := ownerID + "/"
	var continuationToken *string
	for {
		page, err := p.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(listPageSize),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return classifyErr(err)
		}

		if len(page.Contents) > 0 {
			identifiers := make([]types.ObjectIdentifier, len(page.Contents))
			for i, obj := range page.Contents {
				identifiers[i] = types.ObjectIdentifier{Key: obj.Key}
			}
			if _, err = p.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
				Bucket: aws.String(p.bucket),
				Delete: &types.Delete{Objects: identifiers},
			}); err != nil {
				return classifyErr(err)
			}
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuationToken = page.NextContinuationToken
	}
	return nil
}

// GetUserStorageSize sums the size of every object under ownerID's prefix.
func (p *Provider) GetUserStorageSize(ctx context.Context, ownerID string) (int64, error) {
	prefix := ownerID + "/"
	var total int64
	var continuationToken *string
	for {
		page, err := p.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(listPageSize),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return 0, classifyErr(err)
		}
		for _, obj := range page.Contents {
			if obj.Size != nil {
				total += *obj.Size
			}
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuationToken = page.NextContinuationToken
	}
	return total, nil
}

// httpRange renders an S3 Range header. end == 0 means "to the end of the
// object" (storage.Range's doc comment), which S3 spells as an open-ended
// range rather than an explicit "-0".
func httpRange(start, end int64) string {
	if end == 0 {
		return fmt.Sprintf("bytes=%d-", start)
	}
	return fmt.Sprintf("bytes=%d-%d", start, end)
}

// classifyErr maps an opaque SDK/network error to the provider error
// taxonomy. An error that already carries a kind is returned as is; every
// other error is treated as transient so callers know it is safe to retry.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var alreadyClassified *xfererr.Error
	if errors.As(err, &alreadyClassified) {
		return err
	}
	return xfererr.Wrap(xfererr.ProviderTransient, err)
}
