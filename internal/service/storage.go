package service

import (
	"context"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/LuckiPhoenix/idest-server/internal/errs"
)

// RecordingURLResolver turns a stored recording locator into a URL a client
// can play back. Private storage locators become time-limited signed URLs;
// already-public URLs pass through unchanged.
type RecordingURLResolver interface {
	Resolve(ctx context.Context, location string) (string, error)
}

// S3URLResolver presigns GET access against the storage bucket holding
// recording files.
type S3URLResolver struct {
	presigner *s3.PresignClient
	bucket    string
	expiry    time.Duration
}

func NewS3URLResolver(ctx context.Context, accessKey, secretKey, region, endpoint, bucket string, expiry time.Duration) (*S3URLResolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, errs.Internal("failed to load storage config", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = awssdk.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3URLResolver{
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		expiry:    expiry,
	}, nil
}

func (r *S3URLResolver) Resolve(ctx context.Context, location string) (string, error) {
	if location == "" {
		return "", nil
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location, nil
	}

	bucket, key := r.bucket, location
	if trimmed, ok := strings.CutPrefix(location, "s3://"); ok {
		if b, k, found := strings.Cut(trimmed, "/"); found {
			bucket, key = b, k
		}
	}
	key = strings.TrimPrefix(key, "/")

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: awssdk.String(bucket),
		Key:    awssdk.String(key),
	}, s3.WithPresignExpires(r.expiry))
	if err != nil {
		return "", errs.Upstream("failed to sign recording URL", err)
	}
	return req.URL, nil
}
