//go:build !gcp

package archive

import (
	"context"
	"fmt"
)

func openGCS(ctx context.Context, bucket, prefix string) (Store, error) {
	return nil, fmt.Errorf("GCS archive is not enabled in this build (use -tags gcp)")
}
