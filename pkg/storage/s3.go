package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

type S3StorageCredentials struct {
	AccessKey string
	SecretKey string
}

// S3EdzStorage keeps archives as objects named "<prefix>/<archive name>".
type S3EdzStorage struct {
	svc    *s3.Client
	bucket string
	prefix string
}

type S3EdzStorageOpts struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	HTTPClient     *http.Client
}

const uploadConcurrency = 16

func NewS3EdzStorage(ctx context.Context, opts S3EdzStorageOpts) (*S3EdzStorage, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket not provided")
	}

	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if opts.AccessKey != "" && opts.SecretKey != "" {
		accessKey = opts.AccessKey
		secretKey = opts.SecretKey
	}

	cfg, err := getAWSConfig(ctx, accessKey, secretKey, opts.Region, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	svc := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	// Check to see if we have access to the bucket
	_, err = svc.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(opts.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot access bucket <%s>: %w", opts.Bucket, err)
	}

	return &S3EdzStorage{
		svc:    svc,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
	}, nil
}

func getAWSConfig(ctx context.Context, accessKey string, secretKey string, region string, httpClient *http.Client) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if httpClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(httpClient))
	}

	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

func (s3s *S3EdzStorage) key(name string) string {
	if s3s.prefix == "" {
		return name
	}
	return path.Join(s3s.prefix, name)
}

// Store uploads the archive and returns its object key.
func (s3s *S3EdzStorage) Store(ctx context.Context, archivePath string) (string, error) {
	if err := checkArchive(archivePath); err != nil {
		return "", err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive <%s>: %w", archivePath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	length := fi.Size()

	key := s3s.key(filepath.Base(archivePath))
	uploader := manager.NewUploader(s3s.svc, func(u *manager.Uploader) {
		u.Concurrency = uploadConcurrency
	})

	startTime := time.Now()
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s3s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(length),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	log.Info().Msgf("uploaded <%s> to s3://%s/%s in %v", archivePath, s3s.bucket, key, time.Since(startTime))
	return key, nil
}

// Fetch downloads the object for name into destPath.
func (s3s *S3EdzStorage) Fetch(ctx context.Context, name string, destPath string) error {
	key := s3s.key(name)
	resp, err := s3s.svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download s3://%s/%s: %w", s3s.bucket, key, err)
	}
	defer resp.Body.Close()

	n, err := writeFileLocked(resp.Body, destPath)
	if err != nil {
		return err
	}

	log.Info().Msgf("downloaded s3://%s/%s to %s (%d bytes)", s3s.bucket, key, destPath, n)
	return nil
}
