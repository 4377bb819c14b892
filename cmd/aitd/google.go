package main

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
)

// googleTokenSource resolves Application Default Credentials with
// read-only Drive scope. Token refresh is handled by the source.
func googleTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	ts, err := google.DefaultTokenSource(ctx, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("resolving default credentials: %w", err)
	}
	return ts, nil
}
