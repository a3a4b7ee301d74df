// Package storage uploads media assets to an S3-compatible bucket and hands
// back presigned GET URLs the Graph API can fetch. Google Cloud Storage works
// through its S3-interoperability endpoint with HMAC credentials.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/config"
	"github.com/xeptore/crateclip/errutil"
)

// throttleBackoff is the pause before the single retry of a rate-limited
// object put.
const throttleBackoff = 2 * time.Second

type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %q failed: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Uploader struct {
	client *s3.S3
	cfg    config.Storage
}

func New(cfg config.Storage) (*Uploader, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if nil != err {
		flawP := flaw.P{"endpoint": cfg.Endpoint, "region": cfg.Region, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to create storage session: %v", err)).Append(flawP)
	}
	return &Uploader{client: s3.New(sess), cfg: cfg}, nil
}

func (u *Uploader) objectKey(localPath, keyPrefix string) string {
	name := filepath.Base(localPath)
	prefix := u.cfg.Prefix
	if keyPrefix != "" {
		prefix = prefix + "/" + keyPrefix
	}
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Upload puts the file into the bucket and returns a presigned GET URL with
// inline disposition, valid for the configured TTL.
func (u *Uploader) Upload(ctx context.Context, localPath, keyPrefix string) (string, error) {
	f, err := os.Open(localPath)
	if nil != err {
		return "", &UploadError{Path: localPath, Err: fmt.Errorf("failed to open file: %v", err)}
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr {
			// Read-only descriptor; nothing actionable.
			_ = closeErr
		}
	}()

	key := u.objectKey(localPath, keyPrefix)
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "video/mp4"
	}

	put := func() error {
		if _, seekErr := f.Seek(0, io.SeekStart); nil != seekErr {
			return seekErr
		}
		_, putErr := u.client.PutObjectWithContext(ctx, &s3.PutObjectInput{ //nolint:exhaustruct
			Bucket:      aws.String(u.cfg.Bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String(contentType),
		})
		return putErr
	}
	if err := put(); nil != err {
		if errutil.IsContext(ctx) {
			return "", ctx.Err()
		}
		if !errutil.IsStorageThrottle(err) {
			return "", &UploadError{Path: localPath, Err: fmt.Errorf("failed to put object %q: %v", key, err)}
		}
		time.Sleep(throttleBackoff)
		if err := put(); nil != err {
			if errutil.IsContext(ctx) {
				return "", ctx.Err()
			}
			return "", &UploadError{Path: localPath, Err: fmt.Errorf("failed to put object %q: %v", key, err)}
		}
	}

	req, _ := u.client.GetObjectRequest(&s3.GetObjectInput{ //nolint:exhaustruct
		Bucket:                     aws.String(u.cfg.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("inline; filename=%q", filepath.Base(localPath))),
	})
	signedURL, err := req.Presign(u.cfg.URLTTL())
	if nil != err {
		return "", &UploadError{Path: localPath, Err: fmt.Errorf("failed to presign object %q: %v", key, err)}
	}
	return signedURL, nil
}
