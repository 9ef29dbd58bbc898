package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	battlemodels "skirmish/internal/battle/models"
	clusterservice "skirmish/internal/clustering/service"
	"skirmish/internal/enrichment"
	"skirmish/internal/killmail/ingestion"
	"skirmish/internal/ruleset"
	"skirmish/pkg/handlers"
)

// Routes wires C8's HTTP surface. Grounded on the teacher's
// internal/zkillboard/routes/routes.go (huma.Register per JSON operation,
// a *Routes bundling the services it fronts); the stream endpoint follows
// internal/discord/routes/routes.go:RegisterRoutes(router chi.Router), the
// teacher's "legacy support" escape hatch for handlers huma can't express.
type Routes struct {
	service    *Service
	store      *Store
	rulesetSt  *ruleset.Store
	clusterSvc *clusterservice.Service
	ingestSvc  *ingestion.Service
	enrichWk   *enrichment.Worker
	validate   *validator.Validate
}

func NewRoutes(service *Service, store *Store, rulesetSt *ruleset.Store, clusterSvc *clusterservice.Service, ingestSvc *ingestion.Service, enrichWk *enrichment.Worker) *Routes {
	return &Routes{
		service:    service,
		store:      store,
		rulesetSt:  rulesetSt,
		clusterSvc: clusterSvc,
		ingestSvc:  ingestSvc,
		enrichWk:   enrichWk,
		validate:   validator.New(),
	}
}

// RegisterUnifiedRoutes registers every JSON operation on the shared huma
// API, the way the teacher's per-module RegisterUnifiedRoutes methods do.
func (rt *Routes) RegisterUnifiedRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRecentKillmails",
		Method:      http.MethodGet,
		Path:        "/killmails/recent",
		Summary:     "Get recent killmails",
		Description: "Returns the newest killmails passing the active ruleset and the request's own filters.",
		Tags:        []string{"Feed"},
		Security:    []map[string][]string{},
	}, rt.GetRecent)

	huma.Register(api, huma.Operation{
		OperationID: "getCurrentRuleset",
		Method:      http.MethodGet,
		Path:        "/rulesets/current",
		Summary:     "Get the active ruleset",
		Tags:        []string{"Rulesets"},
		Security:    []map[string][]string{},
	}, rt.GetRuleset)

	huma.Register(api, huma.Operation{
		OperationID: "updateCurrentRuleset",
		Method:      http.MethodPut,
		Path:        "/rulesets/current",
		Summary:     "Patch the active ruleset",
		Description: "Applies a partial update and publishes an invalidation so ingestion and the feed pick it up without a restart.",
		Tags:        []string{"Rulesets"},
		Security:    []map[string][]string{},
	}, rt.UpdateRuleset)

	huma.Register(api, huma.Operation{
		OperationID: "getBattle",
		Method:      http.MethodGet,
		Path:        "/battles/{id}",
		Summary:     "Get a battle with its attached events and participants",
		Tags:        []string{"Battles"},
		Security:    []map[string][]string{},
	}, rt.GetBattle)

	huma.Register(api, huma.Operation{
		OperationID: "reclusterBattles",
		Method:      http.MethodPost,
		Path:        "/battles/recluster",
		Summary:     "Re-run clustering over a time range",
		Description: "Operator-initiated: resets processing state for events in [from, to) and deletes overlapping battles so the next clustering tick rebuilds them from scratch.",
		Tags:        []string{"Battles"},
		Security:    []map[string][]string{},
	}, rt.Recluster)

	huma.Register(api, huma.Operation{
		OperationID: "getIngestionStatus",
		Method:      http.MethodGet,
		Path:        "/ingestion/status",
		Summary:     "Get ingestion service status",
		Description: "Mirrors the teacher's zKillboard consumer status: poll counts, last event id, error tallies, current adaptive time-to-wait.",
		Tags:        []string{"Ingestion"},
		Security:    []map[string][]string{},
	}, rt.GetIngestionStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getEnrichmentStatus",
		Method:      http.MethodGet,
		Path:        "/enrichment/status",
		Summary:     "Get enrichment worker status",
		Tags:        []string{"Enrichment"},
		Security:    []map[string][]string{},
	}, rt.GetEnrichmentStatus)
}

// RegisterRoutes mounts the raw-chi stream endpoint directly on the
// router, bypassing huma exactly the way the teacher's discord module
// bypasses huma for its redirect endpoint — huma in this version has no
// way to express a long-lived flushed response.
func (rt *Routes) RegisterRoutes(router chi.Router) {
	router.Get("/killmails/stream", rt.StreamKillmails)
}

// GetRecentInput is the query shape for GET /killmails/recent, query names
// matching spec §6 exactly (`space_type`, `security_type`, `trackedOnly`).
type GetRecentInput struct {
	Limit           int      `query:"limit" minimum:"1" maximum:"100" default:"25" doc:"Number of killmails to return"`
	SpaceClasses    []string `query:"space_type" doc:"Restrict to these space classes"`
	SecurityClasses []string `query:"security_type" doc:"Restrict to these security classes"`
	TrackedOnly     bool     `query:"trackedOnly" doc:"Require a match against the ruleset's tracked lists"`
}

type GetRecentOutput struct {
	Body RecentResponse `json:"body"`
}

func (rt *Routes) GetRecent(ctx context.Context, input *GetRecentInput) (*GetRecentOutput, error) {
	resp, err := rt.service.Recent(ctx, Query{
		Limit:           input.Limit,
		SpaceClasses:    input.SpaceClasses,
		SecurityClasses: input.SecurityClasses,
		TrackedOnly:     input.TrackedOnly,
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to fetch recent killmails: " + err.Error())
	}
	return &GetRecentOutput{Body: resp}, nil
}

type GetRulesetInput struct{}

type GetRulesetOutput struct {
	Body ruleset.Ruleset `json:"body"`
}

func (rt *Routes) GetRuleset(ctx context.Context, input *GetRulesetInput) (*GetRulesetOutput, error) {
	current, err := rt.rulesetSt.GetActive(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read ruleset: " + err.Error())
	}
	return &GetRulesetOutput{Body: current}, nil
}

type UpdateRulesetInput struct {
	Body ruleset.Patch `json:"body"`
}

type UpdateRulesetOutput struct {
	Body ruleset.Ruleset `json:"body"`
}

func (rt *Routes) UpdateRuleset(ctx context.Context, input *UpdateRulesetInput) (*UpdateRulesetOutput, error) {
	updated, err := rt.rulesetSt.UpdateActive(ctx, input.Body)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to update ruleset: " + err.Error())
	}
	return &UpdateRulesetOutput{Body: updated}, nil
}

type GetBattleInput struct {
	ID string `path:"id"`
}

// BattleDetail bundles a battle with its attached events and participants,
// the supplemented single-battle read spec §9 calls out as fair game.
type BattleDetail struct {
	Battle       battlemodels.Battle       `json:"battle"`
	Events       []battlemodels.Event      `json:"events"`
	Participants []battlemodels.Participant `json:"participants"`
}

type GetBattleOutput struct {
	Body BattleDetail `json:"body"`
}

func (rt *Routes) GetBattle(ctx context.Context, input *GetBattleInput) (*GetBattleOutput, error) {
	battle, events, participants, ok, err := rt.store.BattleDetail(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to fetch battle: " + err.Error())
	}
	if !ok {
		return nil, huma.Error404NotFound("no battle with that id")
	}
	return &GetBattleOutput{Body: BattleDetail{Battle: battle, Events: events, Participants: participants}}, nil
}

type ReclusterInput struct {
	Body struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	} `json:"body"`
}

type ReclusterOutput struct {
	Body struct {
		Message string `json:"message"`
	} `json:"body"`
}

func (rt *Routes) Recluster(ctx context.Context, input *ReclusterInput) (*ReclusterOutput, error) {
	if !input.Body.To.After(input.Body.From) {
		return nil, huma.Error400BadRequest("to must be after from")
	}
	if err := rt.clusterSvc.Recluster(ctx, input.Body.From, input.Body.To); err != nil {
		return nil, huma.Error500InternalServerError("failed to recluster: " + err.Error())
	}
	out := &ReclusterOutput{}
	out.Body.Message = "recluster scheduled: affected events will re-cluster on the next tick"
	return out, nil
}

type GetIngestionStatusInput struct{}

type GetIngestionStatusOutput struct {
	Body ingestion.Status `json:"body"`
}

func (rt *Routes) GetIngestionStatus(ctx context.Context, input *GetIngestionStatusInput) (*GetIngestionStatusOutput, error) {
	return &GetIngestionStatusOutput{Body: rt.ingestSvc.Status()}, nil
}

type GetEnrichmentStatusInput struct{}

type GetEnrichmentStatusOutput struct {
	Body enrichment.Status `json:"body"`
}

func (rt *Routes) GetEnrichmentStatus(ctx context.Context, input *GetEnrichmentStatusInput) (*GetEnrichmentStatusOutput, error) {
	return &GetEnrichmentStatusOutput{Body: rt.enrichWk.Status()}, nil
}

// streamQuery is the manually-validated query shape for the raw chi
// stream endpoint — huma's struct-tag validation doesn't run here, so
// go-playground/validator/v10 does the same job the teacher's
// middleware.ValidationMiddleware does for its own non-huma handlers.
type streamQuery struct {
	PollIntervalMs int      `validate:"min=1000,max=60000"`
	Limit          int      `validate:"min=1,max=100"`
	SpaceClasses   []string `validate:"-"`
	SecurityClasses []string `validate:"-"`
	TrackedOnly    bool     `validate:"-"`
	Once           bool     `validate:"-"`
}

func (rt *Routes) parseStreamQuery(r *http.Request) (streamQuery, error) {
	q := r.URL.Query()

	pollMs, err := handlers.ParseIntQuery(q.Get("pollIntervalMs"), 5000)
	if err != nil {
		return streamQuery{}, fmt.Errorf("invalid pollIntervalMs: %w", err)
	}
	limit, err := handlers.ParseIntQuery(q.Get("limit"), DefaultLimit)
	if err != nil {
		return streamQuery{}, fmt.Errorf("invalid limit: %w", err)
	}

	sq := streamQuery{
		PollIntervalMs:  pollMs,
		Limit:           limit,
		SpaceClasses:    handlers.ParseCommaSeparated(q.Get("space_type")),
		SecurityClasses: handlers.ParseCommaSeparated(q.Get("security_type")),
		TrackedOnly:     q.Get("trackedOnly") == "true",
		Once:            q.Get("once") == "true",
	}

	if err := rt.validate.Struct(sq); err != nil {
		return streamQuery{}, err
	}
	return sq, nil
}

// StreamKillmails serves GET /killmails/stream: an SSE feed seeded with a
// snapshot of the newest killmails, followed by incremental updates every
// poll_interval_ms, re-reading the ruleset between ticks so an
// invalidation takes effect on the very next poll. Grounded on the
// teacher's discord module's raw-chi escape hatch for the one response
// shape huma in this version cannot express: a long-lived flushed stream.
func (rt *Routes) StreamKillmails(w http.ResponseWriter, r *http.Request) {
	sq, err := rt.parseStreamQuery(r)
	if err != nil {
		handlers.BadRequestResponse(w, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.InternalErrorResponse(w, "streaming unsupported")
		return
	}

	q := Query{
		Limit:           sq.Limit,
		SpaceClasses:    sq.SpaceClasses,
		SecurityClasses: sq.SecurityClasses,
		TrackedOnly:     sq.TrackedOnly,
	}

	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot, err := rt.service.Recent(ctx, q)
	if err != nil {
		slog.Error("feed: stream snapshot failed", "error", err)
		return
	}
	if !writeSSE(w, flusher, "snapshot", snapshot) {
		return
	}

	cursor, err := rt.service.Snapshot(ctx, q)
	if err != nil {
		slog.Error("feed: stream cursor seed failed", "error", err)
		return
	}

	if sq.Once {
		return
	}

	ticker := time.NewTicker(time.Duration(sq.PollIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items, next, err := rt.service.Poll(ctx, cursor, q)
			if err != nil {
				slog.Error("feed: stream poll failed", "error", err)
				if !writeSSE(w, flusher, "keep-alive", struct{}{}) {
					return
				}
				continue
			}
			cursor = next
			if len(items) == 0 {
				if !writeSSE(w, flusher, "keep-alive", struct{}{}) {
					return
				}
				continue
			}
			for _, item := range items {
				if !writeSSE(w, flusher, "killmail", item) {
					return
				}
			}
		}
	}
}

// writeSSE frames one event per spec §4.8 ("event: <type>\ndata:
// <json>\n\n") and flushes immediately; returns false on a write error so
// the caller can stop driving a dead connection.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("feed: failed to marshal SSE payload", "error", err)
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
