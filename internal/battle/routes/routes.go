// Package routes exposes the battle core's read API per spec.md §6:
// listBattles, getBattle, recentKillmails (+ a long-poll streaming
// variant), and dashboardSummary. These are thin response-shaping layers
// over internal/battle/projection.Queries — a named non-goal boundary
// (spec.md §1 excludes "HTTP API handlers and response shaping" from the
// hard core), grounded on internal/zkillboard/routes and
// internal/killmails/routes' huma.Register + typed Input/Output idiom.
package routes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/battlescope/battlescope/internal/battle/projection"
	killstore "github.com/battlescope/battlescope/internal/killmail/store"
	"github.com/battlescope/battlescope/internal/ruleset"

	"github.com/danielgtaylor/huma/v2"
)

// Routes serves the battle read API.
type Routes struct {
	queries      *projection.Queries
	killmailLog  *killstore.Store
	rulesetCache *ruleset.Cache
}

func NewRoutes(queries *projection.Queries, killmailLog *killstore.Store, rulesetCache *ruleset.Cache) *Routes {
	return &Routes{queries: queries, killmailLog: killmailLog, rulesetCache: rulesetCache}
}

// RegisterRoutes registers every battle read operation on api.
func (r *Routes) RegisterRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listBattles",
		Method:      http.MethodGet,
		Path:        "/battles",
		Summary:     "List battles",
		Description: "Returns a cursor-paginated page of battles matching the given filters, newest first.",
		Tags:        []string{"Battles"},
		Security:    []map[string][]string{},
	}, r.ListBattles)

	huma.Register(api, huma.Operation{
		OperationID: "getBattle",
		Method:      http.MethodGet,
		Path:        "/battles/{battle_id}",
		Summary:     "Get battle detail",
		Description: "Returns one battle's full detail: member killmails (with enrichment where available), participants, and derived fields.",
		Tags:        []string{"Battles"},
		Security:    []map[string][]string{},
	}, r.GetBattle)

	huma.Register(api, huma.Operation{
		OperationID: "recentKillmails",
		Method:      http.MethodGet,
		Path:        "/killmails/recent",
		Summary:     "Get recent killmails",
		Description: "Returns the most recently ingested killmails, optionally filtered by security type and tracked-only.",
		Tags:        []string{"Killmails"},
		Security:    []map[string][]string{},
	}, r.RecentKillmails)

	huma.Register(api, huma.Operation{
		OperationID: "recentKillmailsStream",
		Method:      http.MethodGet,
		Path:        "/killmails/recent/stream",
		Summary:     "Long-poll recent killmails",
		Description: "Long-polls for killmails ingested after sinceKillmailId, blocking up to pollIntervalMs before returning an (possibly empty) page. Cancels cleanly on client disconnect.",
		Tags:        []string{"Killmails"},
		Security:    []map[string][]string{},
	}, r.RecentKillmailsStream)

	huma.Register(api, huma.Operation{
		OperationID: "dashboardSummary",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Get dashboard summary",
		Description: "Returns global counts and top-N alliance/corporation rankings across all battles.",
		Tags:        []string{"Dashboard"},
		Security:    []map[string][]string{},
	}, r.DashboardSummary)
}

// ListBattlesInput mirrors spec.md §6's listBattles filter map.
type ListBattlesInput struct {
	SpaceType    string `query:"spaceType" doc:"Filter by coarse space classification (kspace|jspace|pochven)"`
	SecurityType string `query:"securityType" doc:"Filter by fine security classification (highsec|lowsec|nullsec|wormhole|pochven)"`
	SystemID     int64  `query:"systemId" doc:"Filter by solar system id"`
	AllianceID   int64  `query:"allianceId" doc:"Filter by participant alliance id"`
	CorpID       int64  `query:"corpId" doc:"Filter by participant corporation id"`
	CharacterID  int64  `query:"characterId" doc:"Filter by participant character id"`
	Since        string `query:"since" doc:"Only battles starting at or after this RFC3339 instant"`
	Until        string `query:"until" doc:"Only battles starting at or before this RFC3339 instant"`
	Cursor       string `query:"cursor" doc:"Opaque pagination cursor from a previous page's nextCursor"`
	Limit        int    `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size, 1-100"`
}

func (in ListBattlesInput) toFilters() (projection.Filters, error) {
	f := projection.Filters{
		SpaceType:    in.SpaceType,
		SecurityType: in.SecurityType,
	}
	if in.SystemID != 0 {
		f.SystemID = &in.SystemID
	}
	if in.AllianceID != 0 {
		f.AllianceID = &in.AllianceID
	}
	if in.CorpID != 0 {
		f.CorpID = &in.CorpID
	}
	if in.CharacterID != 0 {
		f.CharacterID = &in.CharacterID
	}
	if in.Since != "" {
		t, err := time.Parse(time.RFC3339, in.Since)
		if err != nil {
			return f, huma.Error400BadRequest("invalid since timestamp", err)
		}
		f.Since = &t
	}
	if in.Until != "" {
		t, err := time.Parse(time.RFC3339, in.Until)
		if err != nil {
			return f, huma.Error400BadRequest("invalid until timestamp", err)
		}
		f.Until = &t
	}
	return f, nil
}

// BattleSummaryBody is one listBattles row's wire shape.
type BattleSummaryBody struct {
	ID                string `json:"id"`
	SystemID          int64  `json:"systemId"`
	SpaceType         string `json:"spaceType"`
	SecurityType      string `json:"securityType"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	TotalKills        int    `json:"totalKills"`
	TotalIskDestroyed string `json:"totalIskDestroyed"`
	ZkillRelatedURL   string `json:"zkillRelatedUrl"`
}

func toSummaryBody(s projection.BattleSummary) BattleSummaryBody {
	return BattleSummaryBody{
		ID:                s.ID,
		SystemID:          s.SystemID,
		SpaceType:         s.SpaceType,
		SecurityType:      s.SecurityType,
		StartTime:         s.StartTime.Format(time.RFC3339),
		EndTime:           s.EndTime.Format(time.RFC3339),
		TotalKills:        s.TotalKills,
		TotalIskDestroyed: s.TotalIskDestroyed,
		ZkillRelatedURL:   s.ZkillRelatedURL,
	}
}

// ListBattlesOutput is listBattles' response.
type ListBattlesOutput struct {
	Body struct {
		Items      []BattleSummaryBody `json:"items"`
		NextCursor string              `json:"nextCursor,omitempty"`
	} `json:"body"`
}

func (r *Routes) ListBattles(ctx context.Context, in *ListBattlesInput) (*ListBattlesOutput, error) {
	filters, err := in.toFilters()
	if err != nil {
		return nil, err
	}

	items, nextCursor, err := r.queries.ListBattles(ctx, filters, in.Cursor, in.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list battles", err)
	}

	out := &ListBattlesOutput{}
	out.Body.Items = make([]BattleSummaryBody, len(items))
	for i, item := range items {
		out.Body.Items[i] = toSummaryBody(item)
	}
	out.Body.NextCursor = nextCursor
	return out, nil
}

// GetBattleInput identifies one battle by id.
type GetBattleInput struct {
	BattleID string `path:"battle_id" doc:"Battle UUID"`
}

// KillmailViewBody is one member killmail's wire shape within battle detail.
type KillmailViewBody struct {
	KillmailID int64          `json:"killmailId"`
	OccurredAt string         `json:"occurredAt"`
	IskValue   string         `json:"iskValue"`
	ZkbURL     string         `json:"zkbUrl"`
	Enrichment map[string]any `json:"enrichment,omitempty"`
}

// ParticipantBody is one BattleParticipant row's wire shape.
type ParticipantBody struct {
	CharacterID int64  `json:"characterId"`
	CorpID      *int64 `json:"corpId,omitempty"`
	AllianceID  *int64 `json:"allianceId,omitempty"`
	ShipTypeID  *int64 `json:"shipTypeId,omitempty"`
	SideID      *int   `json:"sideId,omitempty"`
	IsVictim    bool   `json:"isVictim"`
}

// GetBattleOutput is getBattle's response.
type GetBattleOutput struct {
	Body struct {
		Battle       BattleSummaryBody `json:"battle"`
		Killmails    []KillmailViewBody `json:"killmails"`
		Participants []ParticipantBody `json:"participants"`
	} `json:"body"`
}

func (r *Routes) GetBattle(ctx context.Context, in *GetBattleInput) (*GetBattleOutput, error) {
	detail, err := r.queries.GetBattle(ctx, in.BattleID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get battle", err)
	}
	if detail == nil {
		return nil, huma.Error404NotFound("battle not found")
	}

	out := &GetBattleOutput{}
	out.Body.Battle = toSummaryBody(detail.Battle)

	out.Body.Killmails = make([]KillmailViewBody, len(detail.Killmails))
	for i, k := range detail.Killmails {
		out.Body.Killmails[i] = KillmailViewBody{
			KillmailID: k.Event.KillmailID,
			OccurredAt: k.Event.OccurredAt.Format(time.RFC3339),
			IskValue:   k.Event.IskValueStr,
			ZkbURL:     k.Event.ZkbURL,
			Enrichment: k.Enrichment,
		}
	}

	out.Body.Participants = make([]ParticipantBody, len(detail.Participants))
	for i, p := range detail.Participants {
		out.Body.Participants[i] = ParticipantBody{
			CharacterID: p.CharacterID,
			CorpID:      p.CorpID,
			AllianceID:  p.AllianceID,
			ShipTypeID:  p.ShipTypeID,
			SideID:      p.SideID,
			IsVictim:    p.IsVictim,
		}
	}

	return out, nil
}

// RecentKillmailsInput mirrors spec.md §6's recentKillmails parameters.
type RecentKillmailsInput struct {
	Limit        int    `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Maximum number of killmails to return"`
	SecurityType string `query:"securityType" doc:"Comma-separated security types to filter by (optional)"`
	TrackedOnly  bool   `query:"trackedOnly" doc:"Only return killmails involving an alliance or corp in the active ruleset's tracked lists"`
}

// RecentKillmailsOutput is recentKillmails' response.
type RecentKillmailsOutput struct {
	Body struct {
		Items []KillmailViewBody `json:"items"`
	} `json:"body"`
}

// toFilter builds the store-level filter for recentKillmails, reading the
// active ruleset's tracked alliance/corp lists for trackedOnly.
func (r *Routes) toFilter(in *RecentKillmailsInput) killstore.RecentFilter {
	filter := killstore.RecentFilter{TrackedOnly: in.TrackedOnly}
	if in.SecurityType != "" {
		for _, s := range strings.Split(in.SecurityType, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.SecurityTypes = append(filter.SecurityTypes, s)
			}
		}
	}
	if in.TrackedOnly && r.rulesetCache != nil {
		rs := r.rulesetCache.Load()
		filter.TrackedAllianceIDs = rs.TrackedAllianceIDs
		filter.TrackedCorpIDs = rs.TrackedCorpIDs
	}
	return filter
}

func (r *Routes) RecentKillmails(ctx context.Context, in *RecentKillmailsInput) (*RecentKillmailsOutput, error) {
	events, err := r.killmailLog.FetchRecent(ctx, in.Limit, r.toFilter(in))
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to fetch recent killmails", err)
	}

	out := &RecentKillmailsOutput{}
	out.Body.Items = make([]KillmailViewBody, len(events))
	for i, e := range events {
		out.Body.Items[i] = KillmailViewBody{
			KillmailID: e.KillmailID,
			OccurredAt: e.OccurredAt.Format(time.RFC3339),
			IskValue:   e.IskValueStr,
			ZkbURL:     e.ZkbURL,
		}
	}
	return out, nil
}

// RecentKillmailsStreamInput adds the long-poll knobs spec.md §6 names.
type RecentKillmailsStreamInput struct {
	SinceKillmailID int64 `query:"sinceKillmailId" doc:"Only return killmails ingested after this id"`
	PollIntervalMs  int   `query:"pollIntervalMs" minimum:"1000" maximum:"60000" default:"5000" doc:"Long-poll duration in milliseconds, 1000-60000"`
}

// RecentKillmailsStream blocks for up to pollIntervalMs waiting for a
// killmail newer than sinceKillmailId, returning immediately once one
// arrives or the interval elapses, whichever comes first. Cancels cleanly
// on client disconnect, per spec.md §5.
func (r *Routes) RecentKillmailsStream(ctx context.Context, in *RecentKillmailsStreamInput) (*RecentKillmailsOutput, error) {
	deadline := time.Now().Add(time.Duration(in.PollIntervalMs) * time.Millisecond)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		events, err := r.killmailLog.FetchAfter(ctx, in.SinceKillmailID, 100)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to poll recent killmails", err)
		}
		if len(events) > 0 || time.Now().After(deadline) {
			out := &RecentKillmailsOutput{}
			out.Body.Items = make([]KillmailViewBody, len(events))
			for i, e := range events {
				out.Body.Items[i] = KillmailViewBody{
					KillmailID: e.KillmailID,
					OccurredAt: e.OccurredAt.Format(time.RFC3339),
					IskValue:   e.IskValueStr,
					ZkbURL:     e.ZkbURL,
				}
			}
			return out, nil
		}

		select {
		case <-ctx.Done():
			// Client disconnected mid-poll: abandon cleanly with an empty
			// result rather than surfacing a spurious error, per spec.md §5.
			out := &RecentKillmailsOutput{}
			return out, nil
		case <-ticker.C:
		}
	}
}

// DashboardSummaryInput is dashboardSummary's sole parameter.
type DashboardSummaryInput struct {
	TopN int `query:"topN" minimum:"1" maximum:"50" default:"10" doc:"Number of top alliances/corporations to return"`
}

// RankedEntityBody is one top-N ranking row.
type RankedEntityBody struct {
	EntityID     int64  `json:"entityId"`
	KillCount    int64  `json:"killCount"`
	IskDestroyed string `json:"iskDestroyed"`
}

// DashboardSummaryOutput is dashboardSummary's response.
type DashboardSummaryOutput struct {
	Body struct {
		TotalBattles       int64              `json:"totalBattles"`
		TotalKillmails     int64              `json:"totalKillmails"`
		UniqueAlliances    int64              `json:"uniqueAlliances"`
		UniqueCorporations int64              `json:"uniqueCorporations"`
		TopAlliances       []RankedEntityBody `json:"topAlliances"`
		TopCorporations    []RankedEntityBody `json:"topCorporations"`
		GeneratedAt        string             `json:"generatedAt"`
	} `json:"body"`
}

func (r *Routes) DashboardSummary(ctx context.Context, in *DashboardSummaryInput) (*DashboardSummaryOutput, error) {
	dash, err := r.queries.DashboardSummary(ctx, in.TopN)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to build dashboard summary", err)
	}

	out := &DashboardSummaryOutput{}
	out.Body.TotalBattles = dash.TotalBattles
	out.Body.TotalKillmails = dash.TotalKillmails
	out.Body.UniqueAlliances = dash.UniqueAlliances
	out.Body.UniqueCorporations = dash.UniqueCorporations
	out.Body.TopAlliances = toRankedBody(dash.TopAlliances)
	out.Body.TopCorporations = toRankedBody(dash.TopCorporations)
	out.Body.GeneratedAt = dash.GeneratedAt.Format(time.RFC3339)
	return out, nil
}

func toRankedBody(ranked []projection.RankedEntity) []RankedEntityBody {
	body := make([]RankedEntityBody, len(ranked))
	for i, r := range ranked {
		body[i] = RankedEntityBody{EntityID: r.EntityID, KillCount: r.KillCount, IskDestroyed: r.IskDestroyed}
	}
	return body
}
