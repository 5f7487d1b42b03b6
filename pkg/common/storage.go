package common

type StorageMode string

const (
	StorageModeLocal StorageMode = "local"
	StorageModeS3    StorageMode = "s3"
)

// S3StorageInfo describes where archives live in S3. Prefix is prepended to
// archive names to form object keys.
type S3StorageInfo struct {
	Bucket         string
	Region         string
	Prefix         string
	Endpoint       string
	ForcePathStyle bool
}
