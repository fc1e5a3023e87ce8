package enrichment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/battlescope/battlescope/pkg/evegateway/killmails"
)

// KillmailFetcher is the one operation this package calls on
// pkg/evegateway/killmails.Client; depending on this instead of the full
// client keeps ESIFetcher's surface to exactly what it uses.
type KillmailFetcher interface {
	GetKillmail(ctx context.Context, killmailID int64, hash string) (*killmails.KillmailResponse, error)
}

// ESIFetcher adapts a KillmailFetcher to the Worker's Fetcher interface,
// marshaling the ESI-shaped response into the payload map Record.Payload
// stores.
type ESIFetcher struct {
	client KillmailFetcher
}

func NewESIFetcher(client KillmailFetcher) *ESIFetcher {
	return &ESIFetcher{client: client}
}

func (f *ESIFetcher) FetchKillmailDetail(ctx context.Context, killmailID int64, hash string) (map[string]any, error) {
	detail, err := f.client.GetKillmail(ctx, killmailID, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch killmail %d detail: %w", killmailID, err)
	}

	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal killmail %d detail: %w", killmailID, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal killmail %d detail: %w", killmailID, err)
	}
	return payload, nil
}
