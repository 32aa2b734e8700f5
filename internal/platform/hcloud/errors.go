package hcloud

import (
	"errors"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// Codes without a named constant in hcloud-go.
const (
	errorCodeNetworksOverlap hcloud.ErrorCode = "networks_overlap"
	errorCodeUniqueness      hcloud.ErrorCode = "uniqueness_error"
	errorCodeTimeout         hcloud.ErrorCode = "timeout"
	errorCodeServiceError    hcloud.ErrorCode = "service_error"
)

// isResourceLocked reports errors caused by a running action on the
// resource. They are retryable.
func isResourceLocked(err error) bool {
	return isHCloudErrorCode(err,
		hcloud.ErrorCodeLocked,
		hcloud.ErrorCodeConflict,
		hcloud.ErrorCodeResourceLocked,
		hcloud.ErrorCodeResourceUnavailable,
	)
}

// isRetryable also covers rate limiting and server-side hiccups.
func isRetryable(err error) bool {
	return isResourceLocked(err) || isHCloudErrorCode(err,
		hcloud.ErrorCodeRateLimitExceeded,
		errorCodeTimeout,
		errorCodeServiceError,
	)
}

// isOverlap matches the errors the API returns for subnets and routes
// that collide with existing ones.
func isOverlap(err error) bool {
	return isHCloudErrorCode(err, errorCodeNetworksOverlap, errorCodeUniqueness)
}

func isHCloudErrorCode(err error, codes ...hcloud.ErrorCode) bool {
	if err == nil {
		return false
	}

	var hcloudErr hcloud.Error
	if errors.As(err, &hcloudErr) {
		for _, code := range codes {
			if hcloudErr.Code == code {
				return true
			}
		}
	}
	return false
}

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	return isHCloudErrorCode(err, hcloud.ErrorCodeNotFound)
}

// IsRateLimited checks if an error indicates rate limiting.
func IsRateLimited(err error) bool {
	return isHCloudErrorCode(err, hcloud.ErrorCodeRateLimitExceeded)
}
