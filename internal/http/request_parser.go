// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, path identifiers and query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lodge/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// errBadJSON marks bodies that cannot be decoded at all; it maps to 400.
var errBadJSON = errors.New("malformed JSON body")

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// decodeJSON decodes the request body into v, rejecting unknown fields and
// trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after object", errBadJSON)
	}
	return nil
}

// pathID parses the {name} path wildcard as a positive id.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a valid id", raw)}
	}
	return id, nil
}

// QueryInt reads an integer query parameter, returning def when it is absent.
func QueryInt(query url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a number", v)}
	}
	return n, nil
}

// QueryID reads an optional positive id query parameter; 0 means absent.
func QueryID(query url.Values, name string) (int64, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a valid id", v)}
	}
	return id, nil
}

// QueryDate reads an optional YYYY-MM-DD query parameter.
func QueryDate(query url.Values, name string) (*core.Date, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, &core.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", v)}
	}
	return &d, nil
}

// ParseYear extracts the year query parameter, defaulting to the year of now.
func ParseYear(query url.Values, now time.Time) (int, error) {
	year, err := QueryInt(query, "year", now.Year())
	if err != nil {
		return 0, err
	}
	if year < 1900 || year > 9999 {
		return 0, &core.ValidationError{Field: "year", Reason: "must be between 1900 and 9999"}
	}
	return year, nil
}

// ParseMonthParams extracts year and month from query parameters, using
// the month of now as default.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	year, err := ParseYear(query, now)
	if err != nil {
		return MonthParams{}, err
	}
	month, err := QueryInt(query, "month", int(now.Month()))
	if err != nil {
		return MonthParams{}, err
	}
	if !core.ValidMonth(month) {
		return MonthParams{}, &core.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	return MonthParams{Year: year, Month: month}, nil
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
