package dav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"calsync/internal/ics"
	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// Codec converts raw iCalendar documents to and from model collections.
type Codec interface {
	Decode(raw []byte) (model.Collection, error)
	Encode(col model.Collection) ([]byte, error)
}

// Options configures a Gateway.
type Options struct {
	Codec Codec

	// Timeout bounds every HTTP request. Defaults to 30s.
	Timeout time.Duration

	// RequestsPerSecond / Burst throttle all requests issued by the gateway.
	// A non-positive rate disables throttling.
	RequestsPerSecond float64
	Burst             int

	// MaxOccurrencesPerEvent caps expansion of expanded fetches.
	MaxOccurrencesPerEvent int

	// HTTPClient replaces the default base client (tests).
	HTTPClient *http.Client
}

// Gateway talks to CalDAV/CardDAV servers on behalf of the engine and the
// catalog.
type Gateway struct {
	codec          Codec
	base           *http.Client
	limiter        *rate.Limiter
	maxOccurrences int
	newUID         func() string
}

func NewGateway(opts Options) (*Gateway, error) {
	if opts.Codec == nil {
		return nil, errors.New("dav: codec is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Gateway{
		codec:          opts.Codec,
		base:           base,
		limiter:        rate.NewLimiter(limit, burst),
		maxOccurrences: opts.MaxOccurrencesPerEvent,
		newUID:         uuid.NewString,
	}, nil
}

func (g *Gateway) calDAV(endpoint string, tr model.Transport) (*caldav.Client, *statusRecorder, error) {
	rec := &statusRecorder{next: g.httpClient(tr)}
	c, err := caldav.NewClient(rec, endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("dav: caldav client for %s: %w", redactURL(endpoint), err)
	}
	return c, rec, nil
}

// ListCalendars resolves a source into calendars. A server source walks
// current-user-principal -> calendar-home-set -> calendars; a calendar source
// must name an existing calendar collection. Colors come from a separate
// calendar-color PROPFIND and are best effort.
func (g *Gateway) ListCalendars(ctx context.Context, src model.Source) ([]model.Calendar, error) {
	if src.IsServer() {
		c, _, err := g.calDAV(src.ServerURL, src.Transport)
		if err != nil {
			return nil, err
		}
		principal, err := c.FindCurrentUserPrincipal(ctx)
		if err != nil {
			return nil, fmt.Errorf("dav: find principal on %s: %w", redactURL(src.ServerURL), err)
		}
		home, err := c.FindCalendarHomeSet(ctx, principal)
		if err != nil {
			return nil, fmt.Errorf("dav: find calendar home set on %s: %w", redactURL(src.ServerURL), err)
		}
		cals, err := c.FindCalendars(ctx, home)
		if err != nil {
			return nil, fmt.Errorf("dav: list calendars on %s: %w", redactURL(src.ServerURL), err)
		}

		out := make([]model.Calendar, 0, len(cals))
		for _, cal := range cals {
			out = append(out, toCalendar(resolveURL(src.ServerURL, cal.Path), cal, src.Transport))
		}
		g.applyColors(ctx, out, resolveURL(src.ServerURL, home), "1", src.Transport)
		appLog.Info("dav calendars listed", "source", src.ID, "url", redactURL(src.ServerURL), "count", len(out))
		return out, nil
	}

	if src.CalendarURL == "" {
		return nil, nil
	}

	c, _, err := g.calDAV(src.CalendarURL, src.Transport)
	if err != nil {
		return nil, err
	}
	want := pathOf(src.CalendarURL)
	cals, err := c.FindCalendars(ctx, want)
	if err != nil {
		return nil, fmt.Errorf("dav: propfind calendar %s: %w", redactURL(src.CalendarURL), err)
	}
	for _, cal := range cals {
		if !samePath(cal.Path, want) {
			continue
		}
		out := []model.Calendar{toCalendar(src.CalendarURL, cal, src.Transport)}
		out[0].UID = src.CalendarUID
		g.applyColors(ctx, out, src.CalendarURL, "0", src.Transport)
		return out, nil
	}
	return nil, fmt.Errorf("dav: calendar %s does not exist", redactURL(src.CalendarURL))
}

func toCalendar(u string, cal caldav.Calendar, tr model.Transport) model.Calendar {
	return model.Calendar{
		URL:         u,
		DisplayName: cal.Name,
		Description: cal.Description,
		Components:  append([]string(nil), cal.SupportedComponentSet...),
		Transport:   tr.Clone(),
	}
}

func fullCompRequest() caldav.CalendarCompRequest {
	return caldav.CalendarCompRequest{
		Name:     "VCALENDAR",
		AllProps: true,
		AllComps: true,
	}
}

// FetchDocuments runs either a targeted multiget (q.ObjectURLs) or a
// time-ranged VEVENT query. With q.Expand the query results are expanded
// into occurrences over [q.Start, q.End); documents left without any event
// in the window are dropped.
func (g *Gateway) FetchDocuments(ctx context.Context, cal model.Calendar, q model.Query) ([]*model.Document, error) {
	c, _, err := g.calDAV(cal.URL, cal.Transport)
	if err != nil {
		return nil, err
	}
	calPath := pathOf(cal.URL)

	var objs []caldav.CalendarObject
	if len(q.ObjectURLs) > 0 {
		paths := make([]string, 0, len(q.ObjectURLs))
		for _, u := range q.ObjectURLs {
			paths = append(paths, pathOf(u))
		}
		objs, err = c.MultiGetCalendar(ctx, calPath, &caldav.CalendarMultiGet{
			Paths:       paths,
			CompRequest: fullCompRequest(),
		})
	} else {
		objs, err = c.QueryCalendar(ctx, calPath, &caldav.CalendarQuery{
			CompRequest: fullCompRequest(),
			CompFilter: caldav.CompFilter{
				Name: "VCALENDAR",
				Comps: []caldav.CompFilter{{
					Name:  "VEVENT",
					Start: q.Start,
					End:   q.End,
				}},
			},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("dav: fetch objects of %s: %w", redactURL(cal.URL), err)
	}

	expand := q.Expand && len(q.ObjectURLs) == 0
	docs := make([]*model.Document, 0, len(objs))
	for _, o := range objs {
		doc, err := g.toDocument(cal, o)
		if err != nil {
			appLog.Error("dav object decode failed", err, "calendar", redactURL(cal.URL), "path", o.Path)
			continue
		}
		if expand {
			exp, err := ics.Expand(*doc, ics.ExpandConfig{
				RangeStart:             q.Start,
				RangeEnd:               q.End,
				MaxOccurrencesPerEvent: g.maxOccurrences,
			})
			if err != nil {
				return nil, err
			}
			if len(exp.Events) == 0 {
				continue
			}
			doc = &exp
		}
		docs = append(docs, doc)
	}

	appLog.Debug("dav objects fetched",
		"calendar", redactURL(cal.URL),
		"count", len(docs),
		"expand", expand,
		"multiget", len(q.ObjectURLs),
	)
	return docs, nil
}

func (g *Gateway) toDocument(cal model.Calendar, o caldav.CalendarObject) (*model.Document, error) {
	if o.Data == nil {
		return nil, errors.New("object has no calendar data")
	}
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(o.Data); err != nil {
		return nil, err
	}
	col, err := g.codec.Decode(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return &model.Document{
		URL:         resolveURL(cal.URL, o.Path),
		ETag:        o.ETag,
		CalendarURL: cal.URL,
		Collection:  col,
	}, nil
}

// CreateDocument stores col as a new object named "<uid>.ics". Every event
// receives the same freshly generated uid.
func (g *Gateway) CreateDocument(ctx context.Context, cal model.Calendar, col model.Collection) (model.Result, string) {
	col.Events = model.CloneEvents(col.Events)
	uid := g.newUID()
	for i := range col.Events {
		col.Events[i].UID = uid
	}

	doc := model.Document{
		URL:         resolveURL(cal.URL, path.Join(pathOf(cal.URL), uid+".ics")),
		CalendarURL: cal.URL,
		Collection:  col,
	}
	res, text := g.put(ctx, cal, doc)
	res.URL = doc.URL
	return res, text
}

// UpdateDocument replaces the object at doc.URL. A known doc.ETag is sent
// as If-Match, so a concurrent change on the store fails the write with 412.
func (g *Gateway) UpdateDocument(ctx context.Context, cal model.Calendar, doc model.Document) (model.Result, string) {
	return g.put(ctx, cal, doc)
}

// DeleteDocument removes the object at doc.URL, conditional on doc.ETag like
// UpdateDocument. The returned text is the document as it was last held
// locally.
func (g *Gateway) DeleteDocument(ctx context.Context, cal model.Calendar, doc model.Document) (model.Result, string) {
	raw, err := g.codec.Encode(doc.Collection)
	if err != nil {
		return model.Result{Err: err}, ""
	}

	c, rec, err := g.calDAV(cal.URL, withIfMatch(cal.Transport, doc.ETag))
	if err != nil {
		return model.Result{Err: err}, string(raw)
	}

	err = c.RemoveAll(ctx, pathOf(doc.URL))
	res := rec.result(err)
	logWrite("delete", doc.URL, res)
	return res, string(raw)
}

func (g *Gateway) put(ctx context.Context, cal model.Calendar, doc model.Document) (model.Result, string) {
	raw, err := g.codec.Encode(doc.Collection)
	if err != nil {
		return model.Result{Err: err}, ""
	}

	data, err := ical.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		return model.Result{Err: fmt.Errorf("dav: re-read encoded document: %w", err)}, string(raw)
	}

	c, rec, err := g.calDAV(cal.URL, withIfMatch(cal.Transport, doc.ETag))
	if err != nil {
		return model.Result{Err: err}, string(raw)
	}

	obj, err := c.PutCalendarObject(ctx, pathOf(doc.URL), data)
	res := rec.result(err)
	if err == nil && obj != nil {
		res.ETag = obj.ETag
	}
	logWrite("put", doc.URL, res)
	return res, string(raw)
}

func logWrite(op, docURL string, res model.Result) {
	if res.OK {
		appLog.Info("dav write", "op", op, "url", redactURL(docURL), "status", res.Status)
		return
	}
	appLog.Error("dav write failed", res.Err, "op", op, "url", redactURL(docURL), "status", res.Status)
}
