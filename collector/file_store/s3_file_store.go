package file_store

import (
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"

	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

const DefaultRegion = "ap-northeast-2"

type S3FileStore struct {
	bucket   string
	uploader s3manageriface.UploaderAPI
}

// NewS3FileStore uses the default AWS credential chain. The region comes
// from AWS_REGION, falling back to Seoul where the chat audience is.
func NewS3FileStore(bucket string) (*S3FileStore, error) {
	if bucket == "" {
		return nil, errors.New("s3 file store requires a bucket")
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = DefaultRegion
	}
	// AWS client session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}
	return NewS3FileStoreWithUploader(bucket, s3manager.NewUploader(sess)), nil
}

func NewS3FileStoreWithUploader(bucket string, uploader s3manageriface.UploaderAPI) *S3FileStore {
	return &S3FileStore{bucket: bucket, uploader: uploader}
}

func (s *S3FileStore) Store(key string, body io.Reader) (string, error) {
	if key == "" {
		return "", errors.New("generate empty s3 key, invalid")
	}
	_, err := s.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		Logger.Log.WithField("key", key).WithError(err).Warn("fail to upload file to s3")
		return "", err
	}
	return key, nil
}

func (s *S3FileStore) GetUrlFromKey(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *S3FileStore) CleanUp() {
	// do nothing for s3
}
