// Package s3 provides a small object-store client for state records,
// usable against AWS S3 and S3-compatible endpoints.
package s3
