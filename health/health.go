package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tink3rlabs/targeting/storage"
)

type HealthChecker struct {
	storage storage.StorageAdapter
	client  *http.Client
}

func NewHealthChecker(storageAdapter storage.StorageAdapter) *HealthChecker {
	return &HealthChecker{storage: storageAdapter, client: http.DefaultClient}
}

// Check pings the storage and then GETs each dependency URL. A dependency answering with
// a status of 400 or above fails the check.
func (h *HealthChecker) Check(ctx context.Context, dependencies ...string) error {
	if err := h.storage.Ping(ctx); err != nil {
		return fmt.Errorf("health check failure: storage check failed: %v", err)
	}

	for _, d := range dependencies {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d, nil)
		if err != nil {
			return fmt.Errorf("health check failure: invalid dependency %s: %v", d, err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("health check failure: request to dependency %s failed: %v", d, err)
		}
		resp.Body.Close()
		if resp.StatusCode > 399 {
			return fmt.Errorf("health check failure: dependency %s returned response code %v", d, resp.StatusCode)
		}
	}
	return nil
}
