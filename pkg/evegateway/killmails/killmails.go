package killmails

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client interface for killmail-related ESI operations. Narrowed to the
// one operation battlescope's enrichment worker actually calls; the
// teacher's gateway also exposes character/corporation killmail history
// and cached variants for its own zkillboard-facing features, which this
// module has no caller for.
type Client interface {
	GetKillmail(ctx context.Context, killmailID int64, hash string) (*KillmailResponse, error)
}

// KillmailResponse represents the full killmail data
type KillmailResponse struct {
	KillmailID    int64      `json:"killmail_id"`
	KillmailTime  time.Time  `json:"killmail_time"`
	SolarSystemID int64      `json:"solar_system_id"`
	MoonID        *int64     `json:"moon_id,omitempty"`
	WarID         *int64     `json:"war_id,omitempty"`
	Victim        Victim     `json:"victim"`
	Attackers     []Attacker `json:"attackers"`
}

// Victim represents the victim information in a killmail
type Victim struct {
	CharacterID   *int64    `json:"character_id,omitempty"`
	CorporationID *int64    `json:"corporation_id,omitempty"`
	AllianceID    *int64    `json:"alliance_id,omitempty"`
	FactionID     *int64    `json:"faction_id,omitempty"`
	ShipTypeID    int64     `json:"ship_type_id"`
	DamageTaken   int64     `json:"damage_taken"`
	Position      *Position `json:"position,omitempty"`
	Items         []Item    `json:"items,omitempty"`
}

// Attacker represents an attacker in a killmail
type Attacker struct {
	CharacterID    *int64  `json:"character_id,omitempty"`
	CorporationID  *int64  `json:"corporation_id,omitempty"`
	AllianceID     *int64  `json:"alliance_id,omitempty"`
	FactionID      *int64  `json:"faction_id,omitempty"`
	ShipTypeID     *int64  `json:"ship_type_id,omitempty"`
	WeaponTypeID   *int64  `json:"weapon_type_id,omitempty"`
	DamageDone     int64   `json:"damage_done"`
	FinalBlow      bool    `json:"final_blow"`
	SecurityStatus float64 `json:"security_status"`
}

// Position represents 3D coordinates in space
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Item represents an item in the victim's ship
type Item struct {
	ItemTypeID        int64  `json:"item_type_id"`
	Flag              int64  `json:"flag"`
	Singleton         int64  `json:"singleton"`
	QuantityDestroyed *int64 `json:"quantity_destroyed,omitempty"`
	QuantityDropped   *int64 `json:"quantity_dropped,omitempty"`
	Items             []Item `json:"items,omitempty"`
}

// RetryClient interface for retry operations
type RetryClient interface {
	DoWithRetry(ctx context.Context, req *http.Request, maxRetries int) (*http.Response, error)
}

// KillmailClient implements killmail-related ESI operations
type KillmailClient struct {
	baseURL     string
	userAgent   string
	retryClient RetryClient
}

// NewKillmailClient creates a new killmail client
func NewKillmailClient(baseURL, userAgent string, retryClient RetryClient) Client {
	return &KillmailClient{
		baseURL:     baseURL,
		userAgent:   userAgent,
		retryClient: retryClient,
	}
}

// GetKillmail fetches a killmail from ESI
func (c *KillmailClient) GetKillmail(ctx context.Context, killmailID int64, hash string) (*KillmailResponse, error) {
	tracer := otel.Tracer("evegateway")
	ctx, span := tracer.Start(ctx, "GetKillmail",
		trace.WithAttributes(
			attribute.Int64("killmail_id", killmailID),
			attribute.String("hash", hash),
		))
	defer span.End()

	url := fmt.Sprintf("%s/killmails/%d/%s/", c.baseURL, killmailID, hash)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.retryClient.DoWithRetry(ctx, req, 3)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		span.SetStatus(codes.Error, fmt.Sprintf("ESI returned status %d", resp.StatusCode))
		return nil, fmt.Errorf("ESI returned status %d: %s", resp.StatusCode, string(body))
	}

	var killmail KillmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&killmail); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode response")
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	span.SetStatus(codes.Ok, "Killmail fetched successfully")
	return &killmail, nil
}
