// services/rare_event.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// RareEventNotifier pushes a dig's USD value to the golden-find broadcast
// service. Fire-and-forget: delivery failures are logged and never touch
// ledger state.
type RareEventNotifier struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewRareEventNotifier(baseURL, token string) *RareEventNotifier {
	return &RareEventNotifier{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Notify sends the event asynchronously.
func (n *RareEventNotifier) Notify(usdValue float64, chainID, tokenSymbol, userID string) {
	if n == nil || n.BaseURL == "" {
		return
	}

	go func() {
		payload := map[string]interface{}{
			"usd_value":    usdValue,
			"chain_id":     chainID,
			"token_symbol": tokenSymbol,
			"user_id":      userID,
		}
		jsonData, _ := json.Marshal(payload)

		url := fmt.Sprintf("%s/events/dig", n.BaseURL)
		req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+n.Token)

		resp, err := n.Client.Do(req)
		if err != nil {
			log.Printf("[RARE_EVENT] ⚠️ notify failed: %v", err)
			return
		}
		resp.Body.Close()
	}()
}
