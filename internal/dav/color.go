package dav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

const colorPropfind = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:a="http://apple.com/ns/ical/">
  <d:prop><a:calendar-color/></d:prop>
</d:propfind>`

type colorMultistatus struct {
	XMLName   xml.Name        `xml:"DAV: multistatus"`
	Responses []colorResponse `xml:"DAV: response"`
}

type colorResponse struct {
	Href      string          `xml:"DAV: href"`
	Propstats []colorPropstat `xml:"DAV: propstat"`
}

type colorPropstat struct {
	Prop struct {
		Color string `xml:"http://apple.com/ns/ical/ calendar-color"`
	} `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

// calendarColors asks endpoint for the Apple calendar-color property of
// itself (depth "0") or of its members (depth "1"). Keys are collection
// paths without a trailing slash.
func (g *Gateway) calendarColors(ctx context.Context, endpoint, depth string, tr model.Transport) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", endpoint, strings.NewReader(colorPropfind))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", depth)

	resp, err := g.httpClient(tr).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("propfind calendar-color: unexpected status %d", resp.StatusCode)
	}

	var ms colorMultistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("propfind calendar-color: %w", err)
	}

	out := map[string]string{}
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			if c := strings.TrimSpace(ps.Prop.Color); c != "" && !strings.Contains(ps.Status, " 404") {
				out[colorKey(pathOf(r.Href))] = c
			}
		}
	}
	return out, nil
}

// applyColors fills Calendar.Color from a calendarColors lookup. Color is
// optional: a failed lookup is logged and leaves the calendars untouched.
func (g *Gateway) applyColors(ctx context.Context, cals []model.Calendar, endpoint, depth string, tr model.Transport) {
	colors, err := g.calendarColors(ctx, endpoint, depth, tr)
	if err != nil {
		appLog.Warn("dav calendar colors unavailable", "url", redactURL(endpoint), "error", err.Error())
		return
	}
	for i := range cals {
		if c, ok := colors[colorKey(pathOf(cals[i].URL))]; ok {
			cals[i].Color = c
		}
	}
}

func colorKey(p string) string {
	return strings.TrimSuffix(p, "/")
}
