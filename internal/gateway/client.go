package gateway

import (
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
)

const providerCallTimeout = 30 * time.Second

// newClient builds the HTTP client used for provider calls. Status
// reconciliation and operations run without automatic retries; a failed call
// surfaces to the caller instead of being retried blindly.
func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(providerCallTimeout).
		SetHeader("User-Agent", "paygate/1.0")
}

// decodeConfig maps a provider config bundle onto a typed struct.
func decodeConfig(bundle map[string]any, out any) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
