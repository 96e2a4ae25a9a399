// Package resource finds the company or location a HighLevel API call targets, which is
// the key its stored session is looked up by.
package resource

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-highlevel-auth/internal/utils"
)

var (
	companyHeaders  = []string{"x-company-id", "companyId", "company-id"}
	locationHeaders = []string{"x-location-id", "locationId", "location-id"}

	// Query and body keys in precedence order.
	paramKeys = []string{"companyId", "locationId", "company_id", "location_id"}
)

// ExtractID returns the resource id for a call, or false when none is present.
//
// Precedence: company headers, location headers, then the query keys companyId,
// locationId, company_id, location_id, then the same keys in the body. Header names
// match case-insensitively; empty values are skipped.
func ExtractID(headers http.Header, query url.Values, body map[string]any) (string, bool) {
	if id, ok := headerValue(headers, companyHeaders); ok {
		return id, true
	}
	if id, ok := headerValue(headers, locationHeaders); ok {
		return id, true
	}
	for _, k := range paramKeys {
		if id := query.Get(k); id != "" {
			return id, true
		}
	}
	for _, k := range paramKeys {
		if id, ok := utils.StringField(body, k); ok {
			return id, true
		}
	}
	return "", false
}

func headerValue(headers http.Header, names []string) (string, bool) {
	for _, name := range names {
		for k, values := range headers {
			if !strings.EqualFold(k, name) {
				continue
			}
			for _, v := range values {
				if v != "" {
					return v, true
				}
			}
		}
	}
	return "", false
}

// FromRequest returns the headers, query and decoded JSON body of req. The body is
// restored so the request can still be sent. Non-JSON or malformed bodies yield a nil map.
func FromRequest(req *http.Request) (http.Header, url.Values, map[string]any, error) {
	var query url.Values
	if req.URL != nil {
		query = req.URL.Query()
	}

	if req.Body == nil || req.Body == http.NoBody || !isJSON(req.Header.Get("Content-Type")) {
		return req.Header, query, nil, nil
	}

	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, nil, nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return req.Header, query, nil, nil
	}
	return req.Header, query, body, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
