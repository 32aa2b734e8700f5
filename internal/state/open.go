package state

import (
	"context"
	"fmt"
	"os"

	"github.com/imamik/vpcmesh/internal/config"
	"github.com/imamik/vpcmesh/internal/platform/s3"
)

// Open returns the store configured for cfg.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.State.Backend {
	case config.BackendSQLite, "":
		return OpenSQLite(ctx, cfg.State.Path, cfg.Name)
	case config.BackendS3:
		client, err := s3.NewClient(ctx, s3.Options{
			Endpoint:  cfg.State.Endpoint,
			Region:    cfg.State.Region,
			AccessKey: os.Getenv("VPCMESH_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("VPCMESH_S3_SECRET_KEY"),
		})
		if err != nil {
			return nil, err
		}
		return OpenS3(ctx, client, cfg.State.Bucket, cfg.State.Source, cfg.Name)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}
