// Package httptransport is the thin HTTP layer over the harvest engine. It
// owns content negotiation, parameter validation and error-to-status mapping;
// harvesting semantics live in internal/harvest.
package httptransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"oai-edge/internal/backend"
	"oai-edge/internal/consortium"
	"oai-edge/internal/harvest"
	"oai-edge/internal/oai"
	"oai-edge/internal/platform/middleware"
)

// Engine runs one harvest request to completion.
type Engine interface {
	Harvest(ctx context.Context, req harvest.Request) (*harvest.Result, error)
}

// Handler wires the OAI-PMH endpoint to the harvest engine.
type Handler struct {
	engine       Engine
	logger       *slog.Logger
	tenantHeader string
	now          func() time.Time
}

type HandlerOption func(h *Handler)

// WithTenantHeader overrides the header the requesting tenant arrives in.
func WithTenantHeader(name string) HandlerOption {
	return func(h *Handler) { h.tenantHeader = name }
}

// NewHandler constructs the OAI-PMH HTTP handler.
func NewHandler(engine Engine, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine:       engine,
		logger:       logger,
		tenantHeader: "X-Okapi-Tenant",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleOAI serves GET and POST requests on /oai and /oai/{apiKeyPath}.
func (h *Handler) HandleOAI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	if ok, offending := oai.NegotiateAccept(r.Header.Values("Accept")); !ok {
		http.Error(w,
			fmt.Sprintf("the Accept header value %q is not supported; this endpoint produces text/xml", offending),
			http.StatusNotAcceptable)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed request parameters", http.StatusBadRequest)
		return
	}
	params := r.Form
	verb := params.Get("verb")

	if errs := oai.Validate(verb, params); len(errs) > 0 {
		h.writeErrorDocument(w, r, errs)
		return
	}

	// Caller authentication happens upstream; what reaches us is the tenant
	// identity, either as a header or as the key path segment.
	tenant := r.Header.Get(h.tenantHeader)
	if tenant == "" {
		tenant = chi.URLParam(r, "apiKeyPath")
	}
	if tenant == "" {
		http.Error(w, "unable to identify the requesting tenant", http.StatusBadRequest)
		return
	}

	result, err := h.engine.Harvest(ctx, harvest.Request{
		RequestID: requestID,
		Tenant:    tenant,
		Verb:      verb,
		Params:    params,
	})
	if err != nil {
		h.writeEngineError(w, r, requestID, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	if result.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", result.ContentEncoding)
	}
	w.WriteHeader(result.Status)
	if _, err := w.Write(result.Body); err != nil {
		h.logger.ErrorContext(ctx, "failed to write harvest response",
			"request_id", requestID,
			"error", err,
		)
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	ctx := r.Context()

	var decodeErr *oai.TokenDecodeError
	if errors.As(err, &decodeErr) {
		h.writeErrorDocument(w, r, []oai.ValidationError{{
			Code:    oai.CodeBadResumptionToken,
			Message: decodeErr.Error(),
		}})
		return
	}

	var timeoutErr *backend.TimeoutError
	if errors.As(err, &timeoutErr) {
		http.Error(w, timeoutErr.Error(), http.StatusRequestTimeout)
		return
	}

	var lookupErr *consortium.LookupError
	if errors.As(err, &lookupErr) {
		h.logger.ErrorContext(ctx, "consortium lookup failed",
			"request_id", requestID,
			"tenant", lookupErr.TenantID,
			"error", err,
		)
		http.Error(w, "consortium membership is currently unavailable", http.StatusServiceUnavailable)
		return
	}

	h.logger.ErrorContext(ctx, "harvest failed",
		"request_id", requestID,
		"error", err,
	)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) writeErrorDocument(w http.ResponseWriter, r *http.Request, errs []oai.ValidationError) {
	body := oai.ErrorDocument(requestURL(r), h.now(), errs)
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(body)
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}
