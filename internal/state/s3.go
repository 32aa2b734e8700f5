package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/imamik/vpcmesh/internal/config"
	"github.com/imamik/vpcmesh/internal/platform/s3"
	"github.com/imamik/vpcmesh/internal/topology"
	"github.com/imamik/vpcmesh/internal/util/naming"
)

// ObjectAPI is the subset of the object-store client the S3 backend uses.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

var _ ObjectAPI = (*s3.Client)(nil)

// S3Store keeps one JSON object per unit under "<topology>/units/".
type S3Store struct {
	api      ObjectAPI
	bucket   string
	topology string
	now      func() time.Time

	// mu serializes writes from concurrently applied units of this process.
	mu sync.Mutex
}

var _ Store = (*S3Store)(nil)

// OpenS3 prepares the bucket according to source. An existing bucket must
// be present; a created bucket must not belong to someone else. Neither
// mismatch is reconciled.
func OpenS3(ctx context.Context, api ObjectAPI, bucket string, source config.BucketSource, topologyName string) (*S3Store, error) {
	switch source {
	case config.BucketExisting, "":
		exists, err := api.BucketExists(ctx, bucket)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: state bucket %s does not exist (source: existing)",
				topology.ErrResourceConflict, bucket)
		}
	case config.BucketCreate:
		if err := api.CreateBucket(ctx, bucket); err != nil {
			if errors.Is(err, s3.ErrBucketTaken) {
				return nil, fmt.Errorf("%w: state bucket %s already exists and is not ours (source: create)",
					topology.ErrResourceConflict, bucket)
			}
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown bucket source %q", topology.ErrInvalidConfig, source)
	}

	return &S3Store{api: api, bucket: bucket, topology: topologyName, now: time.Now}, nil
}

func (s *S3Store) key(unit string) string {
	return naming.StateObject(s.topology, unit)
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, unit string) (*Record, error) {
	data, err := s.api.GetObject(ctx, s.bucket, s.key(unit))
	if errors.Is(err, s3.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, unit)
	}
	if err != nil {
		return nil, fmt.Errorf("reading state of %s: %w", unit, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding state of %s: %w", unit, err)
	}
	return &rec, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(rec, s.now())
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state of %s: %w", rec.Unit, err)
	}
	if err := s.api.PutObject(ctx, s.bucket, s.key(rec.Unit), data); err != nil {
		return fmt.Errorf("writing state of %s: %w", rec.Unit, err)
	}
	return nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.api.DeleteObject(ctx, s.bucket, s.key(unit)); err != nil {
		return fmt.Errorf("deleting state of %s: %w", unit, err)
	}
	return nil
}

// List implements Store.
func (s *S3Store) List(ctx context.Context) ([]*Record, error) {
	prefix := naming.StatePrefix(s.topology)
	keys, err := s.api.ListObjects(ctx, s.bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing state: %w", err)
	}

	var units []string
	for _, k := range keys {
		name, ok := strings.CutSuffix(strings.TrimPrefix(k, prefix), ".json")
		if ok && name != "" && !strings.Contains(name, "/") {
			units = append(units, name)
		}
	}
	slices.Sort(units)

	records := make([]*Record, 0, len(units))
	for _, u := range units {
		rec, err := s.Get(ctx, u)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close implements Store.
func (s *S3Store) Close() error {
	return nil
}
