package pcache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// S3Config locates the bucket that holds snapshots
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// S3Store keeps snapshots as objects in an S3 compatible bucket
type S3Store struct {
	client  *minio.Client
	config  S3Config
	logger  logrus.FieldLogger
	retries uint64
}

// NewS3Store creates a client for config. The bucket is checked lazily on first use.
func NewS3Store(config S3Config, logger logrus.FieldLogger) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	creds := credentials.NewStaticV4(config.AccessKey, config.SecretKey, "")
	if config.AccessKey == "" {
		creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  creds,
		Region: config.Region,
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create client")
	}
	return &S3Store{client: client, config: config, logger: logger, retries: 3}, nil
}

func (s *S3Store) objectName(name string) string {
	return path.Join(s.config.Prefix, SnapshotFileName(name))
}

func (s *S3Store) policy(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries), ctx)
}

func (s *S3Store) checkBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", s.config.Bucket)
	}
	if !ok {
		return backoff.Permanent(errors.Errorf("bucket %s does not exist", s.config.Bucket))
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, name string) ([]byte, error) {
	objectName := s.objectName(name)

	var blob []byte
	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err := s.checkBucket(ctx); err != nil {
			return err
		}

		obj, err := s.client.GetObject(ctx, s.config.Bucket, objectName, minio.GetObjectOptions{})
		if err != nil {
			return errors.Wrapf(err, "get object '%s'", objectName)
		}
		defer obj.Close()

		data, err := io.ReadAll(obj)
		if isNotFound(err) {
			return backoff.Permanent(ErrSnapshotNotFound)
		}
		if err != nil {
			s.logger.WithField("object", objectName).WithError(err).Debug("read failed, retrying")
			return errors.Wrapf(err, "read object '%s'", objectName)
		}
		blob = data
		return nil
	}, s.policy(ctx))
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *S3Store) Put(ctx context.Context, name string, blob []byte) error {
	objectName := s.objectName(name)

	return backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err := s.checkBucket(ctx); err != nil {
			return err
		}

		reader := bytes.NewReader(blob)
		_, err := s.client.PutObject(ctx, s.config.Bucket, objectName, reader, reader.Size(),
			minio.PutObjectOptions{ContentType: "application/octet-stream"})
		if err != nil {
			s.logger.WithField("object", objectName).WithError(err).Debug("put failed, retrying")
			return errors.Wrapf(err, "put object '%s'", objectName)
		}
		return nil
	}, s.policy(ctx))
}

func (s *S3Store) Close() error { return nil }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}
