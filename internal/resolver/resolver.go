// Package resolver finds the current marketplace price of a listing or
// catalog product by running an ordered chain of retrieval strategies and
// stopping at the first one that yields a positive price.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/import-cost-control/internal/extract"
	"github.com/maltedev/import-cost-control/internal/identifier"
	"github.com/maltedev/import-cost-control/internal/mlapi"
	"github.com/maltedev/import-cost-control/internal/pages"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// TokenProvider returns the current access token. Any error means the chain
// runs without authenticated strategies.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Upstream performs one marketplace API call.
type Upstream interface {
	Get(ctx context.Context, path string, query url.Values, auth mlapi.AuthMode, token string) (*mlapi.Response, error)
}

type Options struct {
	Site          string
	ListingBase   string
	ScrapeDefault bool
	ScrapeTimeout time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Site:          identifier.DefaultSite,
		ListingBase:   pages.DefaultListingBase,
		ScrapeTimeout: 20 * time.Second,
	}
}

// Request is one price query.
type Request struct {
	ProductInput string
	MyItemID     string
	Debug        bool
	ForceScrape  bool
}

type Resolver struct {
	api        Upstream
	tokens     TokenProvider
	pages      pages.Fetcher
	classifier *identifier.Classifier
	opts       *Options
	logger     *slog.Logger
	now        func() time.Time
}

// New wires a resolver. tokens and fetcher may be nil: without a token only
// public strategies run, and without a fetcher the scrape strategy is absent.
func New(api Upstream, tokens TokenProvider, fetcher pages.Fetcher, opts *Options, logger *slog.Logger) *Resolver {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	opts = &o
	if opts.ScrapeTimeout <= 0 {
		opts.ScrapeTimeout = 20 * time.Second
	}
	return &Resolver{
		api:        api,
		tokens:     tokens,
		pages:      fetcher,
		classifier: identifier.NewClassifier(opts.Site),
		opts:       opts,
		logger:     logger.With("component", "resolver"),
		now:        time.Now,
	}
}

// hit is a successful strategy.
type hit struct {
	strategy  Strategy
	price     float64
	itemID    string
	sold      *int
	soldTotal *int
}

// outcome summarises one chain run.
type outcome struct {
	phase        string
	hit          *hit
	attempts     int
	reached2xx   int
	lastStatus   int
	lastURL      string
	authRequired bool
	forbidden    bool
}

// merge folds a fallback run into o while keeping o's classification.
func (o *outcome) merge(other outcome) {
	o.attempts += other.attempts
	o.reached2xx += other.reached2xx
	if other.attempts > 0 {
		o.lastStatus = other.lastStatus
		o.lastURL = other.lastURL
	}
}

func (o *outcome) record(a Attempt) {
	o.attempts++
	o.lastStatus = a.Status
	o.lastURL = a.URL
	if a.Status >= 200 && a.Status < 300 {
		o.reached2xx++
	}
}

// Resolve never returns an error: every failure is carried in the Result.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	input := strings.TrimSpace(req.ProductInput)
	myItem := strings.TrimSpace(req.MyItemID)

	if input == "" && myItem == "" {
		return Failure(ErrMissingParam, http.StatusBadRequest, "product_id is required")
	}

	id := r.classifier.Classify(input)
	fallbackWID, hasFallback := r.classifier.ItemID(myItem)

	if !id.Valid() {
		if input != "" || !hasFallback {
			res := Failure(ErrInvalidIDFormat, http.StatusBadRequest,
				fmt.Sprintf("use %s followed by digits, a listing permalink or a catalog link with #wid=", r.classifier.Site()))
			if req.Debug {
				res.Debug = &Trace{Input: input, Kind: id.Kind.String()}
			}
			return res
		}
		id = identifier.Identifier{Kind: identifier.Item, Value: fallbackWID}
	}

	scrape := (r.opts.ScrapeDefault || req.ForceScrape) && r.pages != nil
	trace := &Trace{Input: input, Kind: id.Kind.String(), Scrape: scrape}
	token := r.token(ctx, trace)

	var out outcome
	if id.IsCatalog() {
		out = r.catalogChain(ctx, id.Value, token, trace)
		if out.hit == nil && hasFallback {
			trace.Fallback = fallbackWID
			fb := r.itemChain(ctx, fallbackWID, token, scrape, trace)
			if fb.hit != nil {
				out = fb
			} else {
				out.merge(fb)
			}
		}
	} else {
		out = r.itemChain(ctx, id.Value, token, scrape, trace)
	}

	var res Result
	if out.hit != nil {
		res = r.success(id.Value, out.hit)
		r.logger.Info("price resolved",
			"product_id", id.Value,
			"strategy", out.hit.strategy.Name,
			"price", out.hit.price,
			"attempts", len(trace.Attempts),
		)
	} else {
		res = r.failure(out)
		r.logger.Info("price not resolved",
			"product_id", id.Value,
			"error_code", res.ErrorCode,
			"attempts", len(trace.Attempts),
		)
	}

	if req.Debug {
		res.Debug = trace
	}
	return res
}

func (r *Resolver) token(ctx context.Context, trace *Trace) string {
	if r.tokens == nil {
		trace.TokenErr = "token provider not configured"
		return ""
	}
	tok, err := r.tokens.AccessToken(ctx)
	if err != nil {
		trace.TokenErr = err.Error()
		r.logger.Debug("continuing without token", "error", err)
		return ""
	}
	trace.TokenOK = tok != ""
	return tok
}

func (r *Resolver) success(productID string, h *hit) Result {
	return Result{
		OK:               true,
		Price:            h.price,
		Source:           h.strategy.Source,
		Strategy:         h.strategy.Name,
		ProductID:        productID,
		ItemID:           h.itemID,
		SoldWinner:       h.sold,
		SoldCatalogTotal: h.soldTotal,
		FetchedAt:        r.now().UTC().Format(timeFormat),
	}
}

func (r *Resolver) failure(out outcome) Result {
	switch {
	case out.authRequired:
		return Failure(ErrAuthRequired, http.StatusUnauthorized, "catalog lookup requires an access token")
	case out.forbidden:
		return Failure(ErrForbidden, http.StatusForbidden, "access token lacks permission for this catalog product")
	case out.attempts > 0 && out.reached2xx == out.attempts:
		res := Failure(ErrNoPrice, http.StatusNotFound, "no positive price in upstream responses")
		res.Details = map[string]any{"phase": out.phase, "attempts": out.attempts}
		return res
	}

	status := out.lastStatus
	if status < 400 {
		status = http.StatusBadGateway
	}
	res := Failure(ErrUpstream, status, "all strategies exhausted")
	res.Details = map[string]any{
		"phase":       out.phase,
		"attempts":    out.attempts,
		"last_status": out.lastStatus,
	}
	if out.lastURL != "" {
		res.Details["upstream_url"] = out.lastURL
	}
	return res
}

// itemChain runs the listing strategies in order.
func (r *Resolver) itemChain(ctx context.Context, wid, token string, scrape bool, trace *Trace) outcome {
	out := outcome{phase: "item"}
	for _, s := range ItemStrategies(token != "", scrape) {
		if ctx.Err() != nil {
			break
		}
		h, a := r.attempt(ctx, s, wid, token, trace)
		trace.add(a)
		out.record(a)
		if h != nil {
			out.hit = h
			break
		}
	}
	return out
}

// catalogChain runs the buy-box lookup and then the catalog offers search.
func (r *Resolver) catalogChain(ctx context.Context, productID, token string, trace *Trace) outcome {
	out := outcome{phase: "catalog"}
	strategies := CatalogStrategies(token != "")
	if len(strategies) == 0 {
		out.authRequired = true
		return out
	}

	forbidden := false
	for _, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		h, a := r.attempt(ctx, s, productID, token, trace)
		trace.add(a)
		out.record(a)
		if h != nil {
			out.hit = h
			return out
		}
		if s.Shape == ShapeBuyBox && (a.Status == http.StatusUnauthorized || a.Status == http.StatusForbidden) {
			forbidden = true
		}
	}
	out.forbidden = forbidden
	return out
}

// attempt executes one strategy. It never fails the chain: errors and
// unusable responses come back as a nil hit with the attempt recorded.
func (r *Resolver) attempt(ctx context.Context, s Strategy, target, token string, trace *Trace) (*hit, Attempt) {
	start := time.Now()
	a := Attempt{Strategy: s.Name}

	if s.Shape == ShapePage {
		h := r.scrape(ctx, s, target, trace, &a)
		a.DurationMS = time.Since(start).Milliseconds()
		return h, a
	}

	path, query := r.endpoint(s, target)
	resp, err := r.api.Get(ctx, path, query, s.Auth, token)
	if err != nil {
		a.Note = err.Error()
		r.logger.Debug("strategy failed", "strategy", s.Name, "error", err)
		a.DurationMS = time.Since(start).Milliseconds()
		return nil, a
	}
	a.URL = resp.URL
	a.Status = resp.Status

	var h *hit
	if resp.OK() {
		h = r.interpret(ctx, s, target, token, resp, trace, &a)
	} else {
		a.Note = snippet(resp.Body)
	}

	a.OK = h != nil
	if h != nil {
		a.Price = h.price
	}
	r.logger.Debug("strategy attempted",
		"strategy", s.Name,
		"status", a.Status,
		"ok", a.OK,
		"duration", time.Since(start),
	)
	a.DurationMS = time.Since(start).Milliseconds()
	return h, a
}

func (r *Resolver) endpoint(s Strategy, target string) (string, url.Values) {
	site := r.classifier.Site()
	q := url.Values{}
	switch s.Shape {
	case ShapeSingle:
		if s.Restricted {
			q.Set("attributes", itemAttributes)
		}
		return "/items/" + url.PathEscape(target), q
	case ShapeBulk:
		q.Set("ids", target)
		return "/items", q
	case ShapeSearch:
		q.Set("q", target)
		return "/sites/" + site + "/search", q
	case ShapeBuyBox:
		return "/products/" + url.PathEscape(target), q
	case ShapeOffers:
		q.Set("product_id", target)
		q.Set("limit", "50")
		q.Set("sort", "price_asc")
		return "/sites/" + site + "/search", q
	}
	return "/", q
}

// interpret normalizes a 2xx response of any API shape into a hit.
func (r *Resolver) interpret(ctx context.Context, s Strategy, target, token string, resp *mlapi.Response, trace *Trace, a *Attempt) *hit {
	switch s.Shape {
	case ShapeSingle:
		obj, ok := resp.Object()
		if !ok {
			a.Note = notObject(resp)
			return nil
		}
		return itemHit(s, target, obj, trace, a)

	case ShapeBulk:
		obj, code, ok := unwrapBulk(resp.Data)
		if code != 0 {
			a.Status = code
		}
		if !ok || code < 200 || code >= 300 {
			a.Note = fmt.Sprintf("bulk element code %d", code)
			return nil
		}
		return itemHit(s, target, obj, trace, a)

	case ShapeSearch:
		obj, ok := resp.Object()
		if !ok {
			a.Note = notObject(resp)
			return nil
		}
		match := matchSearch(obj, r.classifier.Site(), target)
		if match == nil {
			a.Note = "no search result matches " + target
			return nil
		}
		trace.seedPermalink(stringField(match, "permalink"))
		price := extract.FromJSON(match)
		if price <= 0 {
			a.Note = "matching result has no price"
			return nil
		}
		return &hit{strategy: s, price: price, itemID: target, sold: soldQuantity(match)}

	case ShapeBuyBox:
		obj, ok := resp.Object()
		if !ok {
			a.Note = notObject(resp)
			return nil
		}
		winner, _ := obj["buy_box_winner"].(map[string]any)
		if winner == nil {
			a.Note = "no buy box winner"
			return nil
		}
		price := extract.FromJSON(winner)
		if price <= 0 {
			a.Note = "buy box winner has no price"
			return nil
		}
		itemID := stringField(winner, "item_id")
		return &hit{strategy: s, price: price, itemID: itemID, sold: r.winnerSold(ctx, itemID, token, trace)}

	case ShapeOffers:
		obj, ok := resp.Object()
		if !ok {
			a.Note = notObject(resp)
			return nil
		}
		pick := pickOffer(obj, target)
		if pick.best == nil {
			a.Note = "no active offers"
			return nil
		}
		total := pick.soldTotal
		trace.seedPermalink(stringField(pick.best, "permalink"))
		return &hit{strategy: s, price: pick.price, itemID: stringField(pick.best, "id"), soldTotal: &total}
	}
	return nil
}

func notObject(resp *mlapi.Response) string {
	if resp.DecodeErr != nil {
		return resp.DecodeErr.Error()
	}
	return "response is not a JSON object"
}

func itemHit(s Strategy, wid string, obj map[string]any, trace *Trace, a *Attempt) *hit {
	trace.seedPermalink(stringField(obj, "permalink"))
	price := extract.FromJSON(obj)
	if price <= 0 {
		a.Note = "item has no positive price"
		return nil
	}
	itemID := stringField(obj, "id")
	if itemID == "" {
		itemID = wid
	}
	return &hit{strategy: s, price: price, itemID: itemID, sold: soldQuantity(obj)}
}

// winnerSold is a best-effort lookup; failures leave the count unknown.
func (r *Resolver) winnerSold(ctx context.Context, itemID, token string, trace *Trace) *int {
	if itemID == "" {
		return nil
	}
	resp, err := r.api.Get(ctx, "/items/"+url.PathEscape(itemID), nil, mlapi.AuthHeader, token)
	if err != nil || !resp.OK() {
		return nil
	}
	obj, ok := resp.Object()
	if !ok {
		return nil
	}
	trace.seedPermalink(stringField(obj, "permalink"))
	return soldQuantity(obj)
}

// scrape fetches the public listing page, preferring a permalink learned
// earlier in the chain.
func (r *Resolver) scrape(ctx context.Context, s Strategy, wid string, trace *Trace, a *Attempt) *hit {
	if r.pages == nil {
		a.Note = "no page fetcher configured"
		return nil
	}

	pageURL := trace.Permalink
	if pageURL == "" {
		pageURL = pages.ListingURL(r.opts.ListingBase, r.classifier.Site(), wid)
	}
	a.URL = pageURL

	ctx, cancel := context.WithTimeout(ctx, r.opts.ScrapeTimeout)
	defer cancel()

	html, err := r.pages.Fetch(ctx, pageURL)
	if err != nil {
		a.Note = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			a.Note = "scrape timed out"
		}
		return nil
	}
	a.Status = http.StatusOK

	price := extract.FromHTML(html)
	if price <= 0 {
		a.Note = "no price found in listing page"
		return nil
	}
	a.OK = true
	a.Price = price
	return &hit{strategy: s, price: price, itemID: wid}
}

func snippet(body []byte) string {
	return truncate(strings.TrimSpace(string(body)), maxNote)
}
