package errutil

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go/aws/awserr"
)

func IsContext(ctx context.Context) bool {
	err := ctx.Err()
	return nil != err && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// IsStorageThrottle reports whether an S3-compatible backend rejected the
// call due to request-rate limiting rather than a hard failure.
func IsStorageThrottle(err error) bool {
	var awsErr awserr.Error
	if !errors.As(err, &awsErr) {
		return false
	}
	switch awsErr.Code() {
	case "SlowDown", "RequestLimitExceeded", "Throttling", "ThrottlingException":
		return true
	default:
		return false
	}
}
