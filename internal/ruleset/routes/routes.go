// Package routes exposes the Ruleset admin CRUD surface per
// SPEC_FULL.md §10: getRuleset/updateRuleset, guarded by a RequireAdmin
// middleware seam. Authentication/authorization is a named non-goal
// (spec.md §1), so the seam here is an interface satisfied by a no-op in
// this module; the real implementation is an external collaborator.
package routes

import (
	"context"
	"net/http"

	"github.com/battlescope/battlescope/internal/ruleset"

	"github.com/danielgtaylor/huma/v2"
)

// AdminGuard authorizes admin-only requests. Satisfied by NoopGuard here;
// a production deployment wires an implementation backed by the external
// auth collaborator spec.md §1 excludes from this core.
type AdminGuard interface {
	RequireAdmin(ctx context.Context) error
}

// NoopGuard allows every request, used when no external auth collaborator
// is wired (e.g. local development, tests).
type NoopGuard struct{}

func (NoopGuard) RequireAdmin(context.Context) error { return nil }

// Routes serves the ruleset admin surface.
type Routes struct {
	repo  *ruleset.Repository
	cache *ruleset.Cache
	guard AdminGuard
}

func NewRoutes(repo *ruleset.Repository, cache *ruleset.Cache, guard AdminGuard) *Routes {
	if guard == nil {
		guard = NoopGuard{}
	}
	return &Routes{repo: repo, cache: cache, guard: guard}
}

// RegisterRoutes registers getRuleset/updateRuleset on api.
func (r *Routes) RegisterRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRuleset",
		Method:      http.MethodGet,
		Path:        "/ruleset",
		Summary:     "Get the active ruleset",
		Description: "Returns the process-wide battle acceptance filter currently in effect.",
		Tags:        []string{"Ruleset"},
		Security:    []map[string][]string{{"bearer": {}}, {"cookie": {}}},
	}, r.Get)

	huma.Register(api, huma.Operation{
		OperationID: "updateRuleset",
		Method:      http.MethodPatch,
		Path:        "/ruleset",
		Summary:     "Update the active ruleset",
		Description: "Applies a partial update to the active ruleset and republishes the process-wide snapshot. Admin-only.",
		Tags:        []string{"Ruleset"},
		Security:    []map[string][]string{{"bearer": {}}, {"cookie": {}}},
	}, r.Update)
}

// GetOutput wraps a Ruleset response body.
type GetOutput struct {
	Body RulesetBody `json:"body"`
}

// RulesetBody is the wire shape for a Ruleset.
type RulesetBody struct {
	MinPilots           int      `json:"minPilots"`
	TrackedAllianceIDs  []int64  `json:"trackedAllianceIds,omitempty"`
	TrackedCorpIDs      []int64  `json:"trackedCorpIds,omitempty"`
	TrackedSystemIDs    []int64  `json:"trackedSystemIds,omitempty"`
	TrackedSecurityType []string `json:"trackedSecurityTypes,omitempty"`
	IgnoreUnlisted      bool     `json:"ignoreUnlisted"`
	UpdatedAt           string   `json:"updatedAt"`
}

func toBody(rs ruleset.Ruleset) RulesetBody {
	return RulesetBody{
		MinPilots:           rs.MinPilots,
		TrackedAllianceIDs:  rs.TrackedAllianceIDs,
		TrackedCorpIDs:      rs.TrackedCorpIDs,
		TrackedSystemIDs:    rs.TrackedSystemIDs,
		TrackedSecurityType: rs.TrackedSecurityType,
		IgnoreUnlisted:      rs.IgnoreUnlisted,
		UpdatedAt:           rs.UpdatedAt.Format("2006-01-02T15:04:05.000000Z07:00"),
	}
}

// Get returns the active ruleset.
func (r *Routes) Get(ctx context.Context, _ *struct{}) (*GetOutput, error) {
	rs := r.cache.Load()
	return &GetOutput{Body: toBody(rs)}, nil
}

// UpdateInput is updateRuleset's request body, per spec.md §3's enumerated
// patchable fields.
type UpdateInput struct {
	Body struct {
		MinPilots           *int     `json:"minPilots,omitempty"`
		TrackedAllianceIDs  []int64  `json:"trackedAllianceIds,omitempty"`
		TrackedCorpIDs      []int64  `json:"trackedCorpIds,omitempty"`
		TrackedSystemIDs    []int64  `json:"trackedSystemIds,omitempty"`
		TrackedSecurityType []string `json:"trackedSecurityTypes,omitempty"`
		IgnoreUnlisted      *bool    `json:"ignoreUnlisted,omitempty"`
	} `json:"body"`
}

// Update applies a patch to the active ruleset, persists it, and
// republishes the process-wide cache snapshot atomically.
func (r *Routes) Update(ctx context.Context, input *UpdateInput) (*GetOutput, error) {
	if err := r.guard.RequireAdmin(ctx); err != nil {
		return nil, huma.Error403Forbidden("admin access required", err)
	}

	patch := ruleset.Patch{
		MinPilots:           input.Body.MinPilots,
		TrackedAllianceIDs:  input.Body.TrackedAllianceIDs,
		TrackedCorpIDs:      input.Body.TrackedCorpIDs,
		TrackedSystemIDs:    input.Body.TrackedSystemIDs,
		TrackedSecurityType: input.Body.TrackedSecurityType,
		IgnoreUnlisted:      input.Body.IgnoreUnlisted,
	}

	next, err := r.repo.Update(ctx, patch)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to update ruleset", err)
	}
	r.cache.Store(next)

	return &GetOutput{Body: toBody(next)}, nil
}
