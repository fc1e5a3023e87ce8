// Package projection implements the battle core's read side —
// listBattles/getBattle/dashboardSummary per spec.md §6 — entirely in
// terms of bson.M filters and aggregation pipelines against the
// collections internal/battle/store owns. Grounded on
// internal/killmails/services/repository.go's cursor-style
// Find+SetSort+SetLimit for ListBattles and on
// internal/zkillboard/services/repository.go's $lookup/$group aggregation
// idiom for DashboardSummary.
package projection

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/battlescope/battlescope/internal/battle/store"
	"github.com/battlescope/battlescope/internal/killmail/enrichment"
	killstore "github.com/battlescope/battlescope/internal/killmail/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Filters mirrors spec.md §6's listBattles filter map. Nil/zero fields are
// unconstrained.
type Filters struct {
	SpaceType    string
	SecurityType string
	SystemID     *int64
	AllianceID   *int64
	CorpID       *int64
	CharacterID  *int64
	Since        *time.Time
	Until        *time.Time
}

// BattleSummary is one listBattles row.
type BattleSummary struct {
	ID                string
	SystemID          int64
	SpaceType         string
	SecurityType      string
	StartTime         time.Time
	EndTime           time.Time
	TotalKills        int
	TotalIskDestroyed string
	ZkillRelatedURL   string
}

// BattleDetail is getBattle's full response: the battle, its member
// killmails (joined against enrichment where available), and its
// participants.
type BattleDetail struct {
	Battle       BattleSummary
	Killmails    []KillmailView
	Participants []store.Participant
}

// KillmailView is one member killmail with whatever enrichment payload
// has completed for it — enrichment failures never hide a killmail from
// battle detail, they just leave Enrichment nil.
type KillmailView struct {
	Event      killstore.Event
	Enrichment map[string]any
}

// Dashboard is dashboardSummary()'s response shape.
type Dashboard struct {
	TotalBattles       int64
	TotalKillmails     int64
	UniqueAlliances    int64
	UniqueCorporations int64
	TopAlliances       []RankedEntity
	TopCorporations    []RankedEntity
	GeneratedAt        time.Time
}

// RankedEntity is one row of a top-N ranking.
type RankedEntity struct {
	EntityID   int64
	KillCount  int64
	IskDestroyed string
}

// Queries is the battle core's read side.
type Queries struct {
	battles      *mongo.Collection
	killmails    *mongo.Collection
	participants *mongo.Collection
	killmailLog  *killstore.Store
	enrichments  *enrichment.Repository
}

func NewQueries(db *store.Store, killmailLog *killstore.Store, enrichments *enrichment.Repository, battles, killmails, participants *mongo.Collection) *Queries {
	return &Queries{
		battles:      battles,
		killmails:    killmails,
		participants: participants,
		killmailLog:  killmailLog,
		enrichments:  enrichments,
	}
}

func buildFilter(f Filters) bson.M {
	filter := bson.M{"deleted_at": nil}
	if f.SpaceType != "" {
		filter["space_type"] = f.SpaceType
	}
	if f.SecurityType != "" {
		filter["security_type"] = f.SecurityType
	}
	if f.SystemID != nil {
		filter["system_id"] = *f.SystemID
	}
	if f.Since != nil || f.Until != nil {
		span := bson.M{}
		if f.Since != nil {
			span["$gte"] = *f.Since
		}
		if f.Until != nil {
			span["$lte"] = *f.Until
		}
		filter["start_time"] = span
	}
	return filter
}

// entityIDs returns the distinct battle ids touched by the alliance/corp/
// character filter, nil if none of the three are set.
func (q *Queries) entityIDs(ctx context.Context, f Filters) (*[]string, error) {
	if f.AllianceID == nil && f.CorpID == nil && f.CharacterID == nil {
		return nil, nil
	}

	pfilter := bson.M{}
	if f.AllianceID != nil {
		pfilter["alliance_id"] = *f.AllianceID
	}
	if f.CorpID != nil {
		pfilter["corp_id"] = *f.CorpID
	}
	if f.CharacterID != nil {
		pfilter["character_id"] = *f.CharacterID
	}

	cursor, err := q.participants.Distinct(ctx, "battle_id", pfilter)
	if err != nil {
		return nil, fmt.Errorf("resolve entity-scoped battles: %w", err)
	}

	ids := make([]string, 0, len(cursor))
	for _, v := range cursor {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return &ids, nil
}

// cursorToken encodes (startTime, id) as an opaque base64 string.
func cursorToken(startTime time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", startTime.UnixMicro(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(token string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	return time.UnixMicro(micros).UTC(), parts[1], nil
}

// ListBattles returns a page of battles matching filters, newest first,
// paginated by an opaque cursor monotonic in (startTime desc, id desc)
// per spec.md §6.
func (q *Queries) ListBattles(ctx context.Context, f Filters, cursor string, limit int) ([]BattleSummary, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	filter := buildFilter(f)

	if ids, err := q.entityIDs(ctx, f); err != nil {
		return nil, "", err
	} else if ids != nil {
		filter["_id"] = bson.M{"$in": *ids}
	}

	if cursor != "" {
		startTime, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		filter["$or"] = bson.A{
			bson.M{"start_time": bson.M{"$lt": startTime}},
			bson.M{"start_time": startTime, "_id": bson.M{"$lt": id}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit) + 1)

	cur, err := q.battles.Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("list battles: %w", err)
	}
	defer cur.Close(ctx)

	var rows []store.Battle
	if err := cur.All(ctx, &rows); err != nil {
		return nil, "", fmt.Errorf("decode battles: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	items := make([]BattleSummary, len(rows))
	for i, b := range rows {
		items[i] = toSummary(b)
	}

	nextCursor := ""
	if hasMore {
		last := rows[len(rows)-1]
		nextCursor = cursorToken(last.StartTime, last.ID)
	}

	return items, nextCursor, nil
}

func toSummary(b store.Battle) BattleSummary {
	return BattleSummary{
		ID:                b.ID,
		SystemID:          b.SystemID,
		SpaceType:         b.SpaceType,
		SecurityType:      b.SecurityType,
		StartTime:         b.StartTime,
		EndTime:           b.EndTime,
		TotalKills:        b.TotalKills,
		TotalIskDestroyed: b.TotalIskDestroyed,
		ZkillRelatedURL:   b.ZkillRelatedURL,
	}
}

// GetBattle returns one battle's full detail, joining member killmails
// against whatever enrichment has completed for each. A nil result with
// nil error means the battle doesn't exist or was soft-deleted.
func (q *Queries) GetBattle(ctx context.Context, id string) (*BattleDetail, error) {
	var battle store.Battle
	err := q.battles.FindOne(ctx, bson.M{"_id": id, "deleted_at": nil}).Decode(&battle)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get battle: %w", err)
	}

	memberCursor, err := q.killmails.Find(ctx, bson.M{"battle_id": id})
	if err != nil {
		return nil, fmt.Errorf("list battle killmails: %w", err)
	}
	defer memberCursor.Close(ctx)

	var members []store.Killmail
	if err := memberCursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("decode battle killmails: %w", err)
	}

	views := make([]KillmailView, 0, len(members))
	for _, m := range members {
		event, err := q.killmailLog.Get(ctx, m.KillmailID)
		if err != nil {
			return nil, fmt.Errorf("get killmail event %d: %w", m.KillmailID, err)
		}
		if event == nil {
			continue
		}

		view := KillmailView{Event: *event}
		if record, err := q.enrichments.Get(ctx, m.KillmailID); err == nil && record != nil && record.Status == enrichment.StatusSucceeded {
			view.Enrichment = record.Payload
		}
		views = append(views, view)
	}

	partCursor, err := q.participants.Find(ctx, bson.M{"battle_id": id})
	if err != nil {
		return nil, fmt.Errorf("list battle participants: %w", err)
	}
	defer partCursor.Close(ctx)

	var participants []store.Participant
	if err := partCursor.All(ctx, &participants); err != nil {
		return nil, fmt.Errorf("decode battle participants: %w", err)
	}

	return &BattleDetail{Battle: toSummary(battle), Killmails: views, Participants: participants}, nil
}

// DashboardSummary aggregates global counts and top-N alliance/corp
// rankings by kill count, per spec.md §6.
func (q *Queries) DashboardSummary(ctx context.Context, topN int) (*Dashboard, error) {
	if topN <= 0 {
		topN = 10
	}

	totalBattles, err := q.battles.CountDocuments(ctx, bson.M{"deleted_at": nil})
	if err != nil {
		return nil, fmt.Errorf("count battles: %w", err)
	}

	totalKillmails, err := q.killmails.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("count battle killmails: %w", err)
	}

	uniqueAlliances, err := q.distinctCount(ctx, "alliance_id")
	if err != nil {
		return nil, err
	}
	uniqueCorps, err := q.distinctCount(ctx, "corp_id")
	if err != nil {
		return nil, err
	}

	topAlliances, err := q.topEntities(ctx, "alliance_id", topN)
	if err != nil {
		return nil, err
	}
	topCorps, err := q.topEntities(ctx, "corp_id", topN)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		TotalBattles:       totalBattles,
		TotalKillmails:     totalKillmails,
		UniqueAlliances:    uniqueAlliances,
		UniqueCorporations: uniqueCorps,
		TopAlliances:       topAlliances,
		TopCorporations:    topCorps,
		GeneratedAt:        time.Now().UTC(),
	}, nil
}

func (q *Queries) distinctCount(ctx context.Context, field string) (int64, error) {
	values, err := q.participants.Distinct(ctx, field, bson.M{field: bson.M{"$ne": nil}})
	if err != nil {
		return 0, fmt.Errorf("distinct %s: %w", field, err)
	}
	return int64(len(values)), nil
}

func (q *Queries) topEntities(ctx context.Context, field string, limit int) ([]RankedEntity, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{field: bson.M{"$ne": nil}}},
		bson.M{"$group": bson.M{
			"_id":        "$" + field,
			"kill_count": bson.M{"$sum": 1},
		}},
		bson.M{"$sort": bson.M{"kill_count": -1}},
		bson.M{"$limit": limit},
	}

	cursor, err := q.participants.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID        int64 `bson:"_id"`
		KillCount int64 `bson:"kill_count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode %s ranking: %w", field, err)
	}

	ranked := make([]RankedEntity, len(rows))
	for i, r := range rows {
		ranked[i] = RankedEntity{EntityID: r.ID, KillCount: r.KillCount}
	}
	return ranked, nil
}
