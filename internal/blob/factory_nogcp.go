//go:build !gcp

package blob

import (
	"context"
	"fmt"
)

func newGCSStore(_ context.Context, _ string) (Store, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
