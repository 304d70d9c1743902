package s3

import (
	"context"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of the AWS SDK's S3 client this backend depends on.
// Narrowing it to an interface lets tests substitute a fake without
// standing up a real bucket.
type API interface {
	PutObject(ctx context.Context, input *awss3.PutObjectInput, opt ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *awss3.GetObjectInput, opt ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, input *awss3.HeadObjectInput, opt ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, input *awss3.DeleteObjectInput, opt ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, input *awss3.DeleteObjectsInput, opt ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, input *awss3.ListObjectsV2Input, opt ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, input *awss3.CreateMultipartUploadInput, opt ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, input *awss3.UploadPartInput, opt ...func(*awss3.Options)) (*awss3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, input *awss3.CompleteMultipartUploadInput, opt ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, input *awss3.AbortMultipartUploadInput, opt ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error)
}

var _ API = (*awss3.Client)(nil)
