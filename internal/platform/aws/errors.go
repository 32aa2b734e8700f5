package aws

import (
	"errors"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// errorCode returns the EC2 error code of err, or "".
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotFound matches the "<Resource>ID.NotFound" family and friends.
func isNotFound(err error) bool {
	code := errorCode(err)
	return strings.HasSuffix(code, ".NotFound") || code == "InvalidRoute.NotFound"
}

// isRetryable reports errors worth another attempt: throttling, transient
// service errors and dependency ordering during deletes.
func isRetryable(err error) bool {
	switch errorCode(err) {
	case "RequestLimitExceeded", "Throttling", "ThrottlingException",
		"InternalError", "InternalFailure", "ServiceUnavailable", "Unavailable",
		"DependencyViolation", "IncorrectState":
		return true
	}
	return false
}

// isRetryableOrMissing also retries not-found errors, for calls that may
// race EC2's eventual consistency right after a create.
func isRetryableOrMissing(err error) bool {
	return isRetryable(err) || isNotFound(err)
}

// isPeeringRejection matches errors of CreateVpcPeeringConnection and
// AcceptVpcPeeringConnection that mean the link can never be made.
func isPeeringRejection(err error) bool {
	switch errorCode(err) {
	case "InvalidVpcID.NotFound", "InvalidRegion", "InvalidParameterValue",
		"OperationNotPermitted", "InvalidStateTransition",
		"VpcPeeringConnectionAlreadyExists", "UnauthorizedOperation",
		"InvalidVpcPeeringConnectionState.DnsHostnamesDisabled":
		return true
	}
	return false
}

// deriveStatus names the outcome of a call for metrics.
func deriveStatus(err error) string {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.Status
	}
	if err != nil {
		return "Failed"
	}
	return "OK"
}
