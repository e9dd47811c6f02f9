package api

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/maltedev/import-cost-control/internal/costs"
	"github.com/maltedev/import-cost-control/internal/mlauth"
	"github.com/maltedev/import-cost-control/internal/refresh"
	"github.com/maltedev/import-cost-control/internal/resolver"
)

type PriceResolver interface {
	Resolve(ctx context.Context, req resolver.Request) resolver.Result
}

// Auth is the marketplace OAuth provider.
type Auth interface {
	AccessToken(ctx context.Context) (string, error)
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Config() mlauth.Config
}

type Refresher interface {
	Run(ctx context.Context) (*refresh.Summary, error)
}

// OutboxStats reports relay backlog for the health check.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	resolver  PriceResolver
	auth      Auth
	refresher Refresher
	outbox    OutboxStats
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandlers wires the HTTP handlers. refresher and outbox may be nil when
// no database is configured.
func NewHandlers(res PriceResolver, auth Auth, refresher Refresher, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		resolver:  res,
		auth:      auth,
		refresher: refresher,
		outbox:    outbox,
		logger:    logger.With("component", "api"),
		now:       time.Now,
	}
}

// Price answers a price query. Logical failures are reported in the body
// with HTTP 200.
func (h *Handlers) Price(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	switch r.Method {
	case http.MethodGet:
	case http.MethodOptions:
		h.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	default:
		h.respondJSON(w, http.StatusOK, resolver.Failure(resolver.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "only GET is allowed"))
		return
	}

	q := r.URL.Query()
	req := resolver.Request{
		ProductInput: strings.TrimSpace(q.Get("product_id")),
		MyItemID:     strings.TrimSpace(q.Get("my_item_id")),
		Debug:        flag(q.Get("debug")),
		ForceScrape:  flag(q.Get("force_scrape")),
	}

	h.respondJSON(w, http.StatusOK, h.resolve(r.Context(), req))
}

func (h *Handlers) resolve(ctx context.Context, req resolver.Request) (res resolver.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("price resolution panicked", "panic", rec, "product_id", req.ProductInput)
			res = resolver.Failure(resolver.ErrInternal, http.StatusInternalServerError, fmt.Sprint(rec))
		}
	}()
	return h.resolver.Resolve(ctx, req)
}

func flag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Costs computes import cost and margin for posted inputs. Omitted fields
// take the calculator defaults.
func (h *Handlers) Costs(w http.ResponseWriter, r *http.Request) {
	in := costs.Defaults()
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := in.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"input":     in,
		"breakdown": costs.Compute(in),
	})
}

// Login redirects the operator to the marketplace authorization page.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.auth.LoginURL(uuid.NewString()), http.StatusFound)
}

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Marketplace authorization</title></head>
<body>
{{if .Error}}<h1>Code exchange failed</h1>
<pre>{{.Error}}</pre>
{{else}}<h1>Tokens obtained</h1>
<p><b>refresh_token:</b></p>
<pre style="white-space:pre-wrap">{{.RefreshToken}}</pre>
<p>Store this value as <code>ML_REFRESH_TOKEN</code> and restart the service.</p>
{{end}}</body></html>
`))

// Callback exchanges the authorization code and shows the refresh token.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "missing 'code'", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	data := struct {
		RefreshToken string
		Error        string
	}{}

	status := http.StatusOK
	tok, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth code exchange failed", "error", err)
		status = http.StatusInternalServerError
		data.Error = err.Error()
	} else {
		data.RefreshToken = tok.RefreshToken
	}

	w.WriteHeader(status)
	if err := callbackPage.Execute(w, data); err != nil {
		h.logger.Error("failed to render callback page", "error", err)
	}
}

// Env lists which OAuth settings are present.
func (h *Handlers) Env(w http.ResponseWriter, r *http.Request) {
	env := map[string]any{}
	for k, v := range h.auth.Config().Have() {
		env[k] = v
	}
	env["GO_VERSION"] = runtime.Version()

	h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "env": env})
}

// TestToken obtains an access token and returns only its prefix.
func (h *Handlers) TestToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	have := h.auth.Config().Have()
	token, err := h.auth.AccessToken(r.Context())
	if err != nil {
		h.respondJSON(w, http.StatusOK, map[string]any{"ok": false, "have": have, "error": err.Error()})
		return
	}

	sample := token
	if len(sample) > 12 {
		sample = sample[:12]
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "have": have, "tokenSample": sample + "..."})
}

// CronRefresh runs one refresh pass when a product store is configured.
func (h *Handlers) CronRefresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		h.respondJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"message": "cron active, but no database configured; nothing to do",
		})
		return
	}

	summary, err := h.refresher.Run(r.Context())
	if err != nil {
		h.logger.Error("refresh pass failed", "error", err)
		h.respondJSON(w, http.StatusOK, map[string]any{"ok": false, "error_code": resolver.ErrInternal, "message": err.Error(), "summary": summary})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": summary})
}

// Health reports liveness and, with a database, the outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"ok":    true,
		"route": "/api/health",
		"now":   h.now().UTC().Format(time.RFC3339Nano),
	}

	status := http.StatusOK
	if h.outbox != nil {
		pendingCount, _ := h.outbox.GetPendingCount(r.Context())
		deadLetterCount, _ := h.outbox.GetDeadLetterCount(r.Context())

		health["outbox"] = map[string]any{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		if pendingCount > 1000 {
			health["message"] = "high number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["ok"] = false
			health["message"] = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]any{"ok": false, "error": message})
}
