// services/price_service.go
package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// PriceClient fetches best-effort USD price snapshots from the oracle
// service. A snapshot is decorative metadata on a reservation: any failure
// returns nil and must never delay or block the reservation itself.
type PriceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewPriceClient(baseURL, token string) *PriceClient {
	return &PriceClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 2 * time.Second, // short — reservation must not wait on the oracle
		},
	}
}

// Snapshot returns the current USD price for the box's token, or nil.
func (c *PriceClient) Snapshot(boxID string) *float64 {
	if c == nil || c.BaseURL == "" {
		return nil
	}

	url := fmt.Sprintf("%s/prices/box/%s", c.BaseURL, boxID)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		log.Printf("[PRICE] ⚠️ snapshot failed for box %s: %v", boxID, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		USDPrice *float64 `json:"usd_price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil
	}
	return out.USDPrice
}
