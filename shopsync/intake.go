package shopsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// SendStoreIntake delivers a completed order's received stock to a remote
// store: one POST per distinct SKU, with role/user/store headers for
// attribution and the caller's bearer token passed through. A non-2xx
// response fails with the response body text.
func SendStoreIntake(ctx context.Context, targetStoreId, role string, userId int, token string, entries []IntakeEntry) error {
	baseURL := strings.TrimSpace(os.Getenv("STORE_INTAKE_API_BASE_URL"))
	if baseURL == "" {
		return fmt.Errorf("STORE_INTAKE_API_BASE_URL is empty")
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/inventory/intake"
	client := &http.Client{Timeout: 30 * time.Second}

	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Role", role)
		req.Header.Set("X-User-Id", fmt.Sprint(userId))
		req.Header.Set("X-Store-Id", targetStoreId)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("store intake failed for sku %s: %d: %s",
				entry.Sku, resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return nil
}
