// Package harvest is the continuation engine: it drives one external OAI-PMH
// request through however many backend calls it takes, walking tenants of a
// consortium transparently and carrying state across requests in compound
// resumption tokens.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"oai-edge/internal/audit"
	"oai-edge/internal/backend"
	"oai-edge/internal/consortium"
	"oai-edge/internal/harvest/metrics"
	"oai-edge/internal/oai"
)

// DefaultMaxHops bounds internal backend calls per external request. A
// pathological backend that keeps answering empty pages with fresh cursors
// must not pin a request forever.
const DefaultMaxHops = 50

// Extra-field keys inside compound tokens.
const (
	extraNativeCursor = "resumptionToken"
	extraSet          = "set"
)

// Backend issues one OAI-PMH call against one tenant.
type Backend interface {
	Call(ctx context.Context, tenant, verb string, params url.Values) (*backend.Response, error)
}

// Consortium resolves and re-derives tenant sequences.
type Consortium interface {
	ResolveSequence(ctx context.Context, tenant string) (consortium.Sequence, error)
	Locate(ctx context.Context, tenant string) (consortium.Sequence, int, error)
}

// Request is a harvest request that already passed content negotiation and
// parameter validation.
type Request struct {
	RequestID string
	Tenant    string // requesting tenant, identified upstream
	Verb      string
	Params    url.Values
}

// Result is what the caller gets back, before transport framing.
type Result struct {
	Status          int
	Body            []byte
	ContentType     string
	ContentEncoding string
}

// Engine is the harvest state machine.
type Engine struct {
	backend    Backend
	consortium Consortium
	policy     ErrorPolicy
	maxHops    int
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      audit.Publisher
	now        func() time.Time
}

type Option func(e *Engine)

func WithMaxHops(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHops = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAudit(p audit.Publisher) Option {
	return func(e *Engine) { e.audit = p }
}

// New constructs the engine.
func New(b Backend, c Consortium, policy ErrorPolicy, opts ...Option) *Engine {
	e := &Engine{
		backend:    b,
		consortium: c,
		policy:     policy,
		maxHops:    DefaultMaxHops,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Harvest runs one external request to completion. The returned error is one
// of the typed failures the transport maps to a status: *oai.TokenDecodeError
// (400), *consortium.LookupError (503), *backend.TimeoutError (408); anything
// else is a 500.
func (e *Engine) Harvest(ctx context.Context, req Request) (*Result, error) {
	if oai.IsListVerb(req.Verb) {
		return e.harvestList(ctx, req)
	}
	return e.dispatchSingle(ctx, req)
}

// dispatchSingle handles the non-paginating verbs: one call against the first
// tenant of the sequence, advancing past backend errors while a fallback
// tenant remains.
func (e *Engine) dispatchSingle(ctx context.Context, req Request) (*Result, error) {
	seq, err := e.consortium.ResolveSequence(ctx, req.Tenant)
	if err != nil {
		return nil, err
	}

	params := forwardParams(req.Params)
	pos, hops, advances := 0, 0, 0
	for {
		tenant := seq[pos]
		resp, err := e.backend.Call(ctx, tenant, req.Verb, params)
		if err != nil {
			return nil, err
		}
		hops++

		if resp.Status/100 != 2 {
			if _, ok := seq.Next(pos); ok && hops < e.maxHops {
				e.logger.InfoContext(ctx, "backend error suppressed, advancing tenant",
					"request_id", req.RequestID,
					"verb", req.Verb,
					"tenant", tenant,
					"backend_status", resp.Status,
				)
				pos++
				advances++
				continue
			}
		}

		status, body := e.policy.Classify(resp.Status, resp.Body)
		e.finish(ctx, req, tenant, status, hops, advances, 0)
		return newResult(resp, status, body), nil
	}
}

// harvestList runs the continuation state machine for ListRecords and
// ListIdentifiers.
func (e *Engine) harvestList(ctx context.Context, req Request) (*Result, error) {
	var (
		seq          consortium.Sequence
		pos          int
		original     oai.HarvestToken
		nativeCursor string
	)

	if raw := req.Params.Get("resumptionToken"); raw != "" {
		// Warm entry: the compound token tells us where the harvest stands.
		token, err := oai.DecodeToken(raw)
		if err != nil {
			e.metrics.IncrementTokenDecodeFailure()
			return nil, err
		}
		seq, pos, err = e.consortium.Locate(ctx, token.TenantID)
		if err != nil {
			return nil, err
		}
		original = token
		nativeCursor = token.ExtraValue(extraNativeCursor)
	} else {
		// Cold entry: sequence and harvesting window come from the request.
		var err error
		seq, err = e.consortium.ResolveSequence(ctx, req.Tenant)
		if err != nil {
			return nil, err
		}
		original = oai.HarvestToken{
			MetadataPrefix: req.Params.Get("metadataPrefix"),
			From:           req.Params.Get("from"),
			Until:          req.Params.Get("until"),
		}
		if set := req.Params.Get("set"); set != "" {
			original = original.WithExtra(extraSet, set)
		}
	}

	hops, advances := 0, 0
	for {
		tenant := seq[pos]
		resp, err := e.backend.Call(ctx, tenant, req.Verb, listParams(original, nativeCursor))
		if err != nil {
			return nil, err
		}
		hops++

		if resp.Status/100 != 2 {
			if _, ok := seq.Next(pos); ok && hops < e.maxHops {
				// A failing tenant mid-sequence reads as exhausted, not fatal.
				e.logger.InfoContext(ctx, "backend error suppressed, advancing tenant",
					"request_id", req.RequestID,
					"verb", req.Verb,
					"tenant", tenant,
					"backend_status", resp.Status,
				)
				pos++
				advances++
				nativeCursor = ""
				continue
			}
			status, body := e.policy.Classify(resp.Status, resp.Body)
			e.finish(ctx, req, tenant, status, hops, advances, 0)
			return newResult(resp, status, body), nil
		}

		summary, err := oai.Inspect(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tenant, err)
		}
		original = refill(original, summary)

		if summary.Records == 0 && summary.ResumptionToken != "" {
			// Empty page, backend has more: keep walking this tenant without
			// surfacing anything. The hop cap guarantees forward progress.
			if hops < e.maxHops {
				nativeCursor = summary.ResumptionToken
				continue
			}
			e.logger.WarnContext(ctx, "hop cap reached, returning cursor to caller",
				"request_id", req.RequestID,
				"tenant", tenant,
				"hops", hops,
			)
		}

		if summary.Records == 0 && summary.ResumptionToken == "" {
			// Tenant exhausted; next one starts over with the original window.
			if _, ok := seq.Next(pos); ok && hops < e.maxHops {
				e.logger.InfoContext(ctx, "tenant exhausted, advancing",
					"request_id", req.RequestID,
					"verb", req.Verb,
					"tenant", tenant,
					"oai_error_code", summary.ErrorCode,
					"oai_error_message", summary.ErrorMessage,
				)
				pos++
				advances++
				nativeCursor = ""
				continue
			}
		}

		return e.respondList(ctx, req, resp, summary, tenant, seq, pos, original, hops, advances), nil
	}
}

// respondList decides the caller-visible resumption token and emits the
// response. Same-tenant continuation wraps the backend cursor inside a
// compound token; a tenant boundary mints a fresh token for the successor;
// end of sequence strips tokens entirely.
func (e *Engine) respondList(ctx context.Context, req Request, resp *backend.Response, summary oai.Summary,
	tenant string, seq consortium.Sequence, pos int, original oai.HarvestToken, hops, advances int) *Result {

	var body []byte
	switch {
	case summary.ResumptionToken != "":
		token := mint(tenant, original, summary.ResumptionToken)
		body = oai.ReplaceResumptionToken(resp.Body, req.Verb, oai.EncodeToken(token))
	default:
		if next, ok := seq.Next(pos); ok {
			token := mint(next, original, "")
			body = oai.ReplaceResumptionToken(resp.Body, req.Verb, oai.EncodeToken(token))
		} else {
			body = oai.StripResumptionToken(resp.Body)
		}
	}

	status, body := e.policy.Classify(resp.Status, body)
	e.finish(ctx, req, tenant, status, hops, advances, summary.Records)
	return newResult(resp, status, body)
}

func (e *Engine) finish(ctx context.Context, req Request, tenant string, status, hops, advances, records int) {
	e.metrics.ObserveRequest(req.Verb, status, hops, advances)
	if e.audit != nil {
		_ = e.audit.Emit(ctx, audit.Event{
			RequestID: req.RequestID,
			Verb:      req.Verb,
			Tenant:    tenant,
			Hops:      hops,
			Records:   records,
			Status:    status,
			Timestamp: e.now(),
		})
	}
	e.logger.InfoContext(ctx, "harvest request completed",
		"request_id", req.RequestID,
		"verb", req.Verb,
		"tenant", tenant,
		"status", status,
		"hops", hops,
		"tenant_advances", advances,
	)
}

// mint builds the compound token for the next request: target tenant, the
// original harvesting window, and optionally the backend-native cursor.
func mint(tenant string, original oai.HarvestToken, nativeCursor string) oai.HarvestToken {
	token := oai.HarvestToken{
		TenantID:       tenant,
		MetadataPrefix: original.MetadataPrefix,
		From:           original.From,
		Until:          original.Until,
	}
	for _, p := range original.Extra {
		if p.Key == extraNativeCursor {
			continue
		}
		token.Extra = append(token.Extra, p)
	}
	if nativeCursor != "" {
		token = token.WithExtra(extraNativeCursor, nativeCursor)
	}
	return token
}

// refill completes harvesting parameters the request did not carry: the
// response's echoed attributes win, then fields parsed out of the backend's
// own resumption token, each field independently.
func refill(original oai.HarvestToken, summary oai.Summary) oai.HarvestToken {
	var native oai.HarvestToken
	if summary.ResumptionToken != "" {
		native = oai.PeekTokenFields(summary.ResumptionToken)
	}
	pick := func(current, echoed, parsed string) string {
		switch {
		case current != "":
			return current
		case echoed != "":
			return echoed
		default:
			return parsed
		}
	}
	original.MetadataPrefix = pick(original.MetadataPrefix, summary.EchoedPrefix, native.MetadataPrefix)
	original.From = pick(original.From, summary.EchoedFrom, native.From)
	original.Until = pick(original.Until, summary.EchoedUntil, native.Until)
	return original
}

// listParams builds the dispatch parameters for one list-verb backend call.
func listParams(original oai.HarvestToken, nativeCursor string) url.Values {
	v := url.Values{}
	if nativeCursor != "" {
		// Backend-native continuation: the cursor is the sole pagination
		// parameter, metadataPrefix dropped.
		v.Set("resumptionToken", nativeCursor)
		return v
	}
	if original.MetadataPrefix != "" {
		v.Set("metadataPrefix", original.MetadataPrefix)
	}
	if original.From != "" {
		v.Set("from", original.From)
	}
	if original.Until != "" {
		v.Set("until", original.Until)
	}
	if set := original.ExtraValue(extraSet); set != "" {
		v.Set("set", set)
	}
	return v
}

// forwardParams copies caller parameters for the non-list verbs, dropping the
// verb itself and API-key material.
func forwardParams(params url.Values) url.Values {
	v := url.Values{}
	for key, values := range params {
		switch key {
		case "verb", "apikey", "apiKeyPath":
			continue
		}
		v[key] = values
	}
	return v
}

func newResult(resp *backend.Response, status int, body []byte) *Result {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "text/xml"
	}
	return &Result{
		Status:          status,
		Body:            body,
		ContentType:     contentType,
		ContentEncoding: resp.ContentEncoding,
	}
}
