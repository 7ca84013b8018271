// Package s3 implements the blob store boundary against Amazon S3.
//
// The bucket has its own server-side encryption at rest, which is orthogonal
// to the envelope encryption performed by the engine: the request sets the
// same AES256 header either way, and the payload handed to S3 is already
// ciphertext.
package s3

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sealbox/sealbox/store/blob"
	"golang.org/x/xerrors"
)

// Store implements a blob store on an S3 bucket.
//
// - implements blob.Store
type Store struct {
	client s3iface.S3API
	bucket string
}

// NewStore returns a store writing to the given bucket through the client.
func NewStore(client s3iface.S3API, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
	}
}

// NewStoreFromRegion returns a store with a client for the given region.
func NewStoreFromRegion(region, bucket string) (*Store, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, xerrors.Errorf("failed to create session: %v", err)
	}

	return NewStore(awss3.New(sess), bucket), nil
}

// Put implements blob.Store. It uploads the data with server-side encryption
// enabled, like every other writer of the bucket.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	input := &awss3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ServerSideEncryption: aws.String(awss3.ServerSideEncryptionAes256),
	}

	_, err := s.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return blob.UnavailableError{Cause: err}
	}

	return nil
}

// Get implements blob.Store. It downloads the object stored under the key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	input := &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}

	output, err := s.client.GetObjectWithContext(ctx, input)
	if err != nil {
		var aerr awserr.Error
		if xerrors.As(err, &aerr) && aerr.Code() == awss3.ErrCodeNoSuchKey {
			return nil, blob.ErrNotFound
		}

		return nil, blob.UnavailableError{Cause: err}
	}

	defer output.Body.Close()

	data, err := ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, blob.UnavailableError{Cause: err}
	}

	return data, nil
}
