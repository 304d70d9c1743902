package s3

import (
	"errors"

	"github.com/aws/smithy-go"
)

// isAwsError tests whether an error object is an instance of the AWS error
// specified by its type.
func isAwsError[T error](err error) bool {
	var awsErr T
	return errors.As(err, &awsErr)
}

func isAwsErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == code
	}
	return false
}
