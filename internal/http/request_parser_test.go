package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"lodge/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth int
		wantField string
	}{
		{
			name:      "both values provided",
			query:     url.Values{"year": {"2024"}, "month": {"12"}},
			wantYear:  2024,
			wantMonth: 12,
		},
		{
			name:      "empty query uses now",
			query:     url.Values{},
			wantYear:  2025,
			wantMonth: 3,
		},
		{
			name:      "month out of range",
			query:     url.Values{"month": {"13"}},
			wantField: "month",
		},
		{
			name:      "year not a number",
			query:     url.Values{"year": {"abc"}},
			wantField: "year",
		},
		{
			name:      "year out of range",
			query:     url.Values{"year": {"1800"}},
			wantField: "year",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query, now)
			if tt.wantField != "" {
				var verr *core.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("error = %v, want ValidationError", err)
				}
				if verr.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Year != tt.wantYear || got.Month != tt.wantMonth {
				t.Errorf("got %d-%d, want %d-%d", got.Year, got.Month, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestQueryID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int64
		wantErr bool
	}{
		{name: "absent", value: "", want: 0},
		{name: "valid", value: "42", want: 42},
		{name: "zero", value: "0", wantErr: true},
		{name: "negative", value: "-3", wantErr: true},
		{name: "garbage", value: "x1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			if tt.value != "" {
				q.Set("member_id", tt.value)
			}
			got, err := QueryID(q, "member_id")
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQueryDate(t *testing.T) {
	d, err := QueryDate(url.Values{"from": {"2025-01-31"}}, "from")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d == nil || d.String() != "2025-01-31" {
		t.Errorf("got %v, want 2025-01-31", d)
	}

	d, err = QueryDate(url.Values{}, "from")
	if err != nil || d != nil {
		t.Errorf("absent date = %v, %v; want nil, nil", d, err)
	}

	_, err = QueryDate(url.Values{"to": {"31/01/2025"}}, "to")
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Field != "to" {
		t.Errorf("error = %v, want ValidationError on to", err)
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    int64
		wantErr bool
	}{
		{name: "valid", path: "/members/7", want: 7},
		{name: "not a number", path: "/members/seven", wantErr: true},
		{name: "zero", path: "/members/0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got int64
				err error
			)
			mux := http.NewServeMux()
			mux.HandleFunc("GET /members/{id}", func(w http.ResponseWriter, r *http.Request) {
				got, err = pathID(r, "id")
			})
			mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "valid object", body: `{"name":"Ada"}`, want: "Ada"},
		{name: "unknown field", body: `{"name":"Ada","extra":1}`, wantErr: true},
		{name: "trailing data", body: `{"name":"Ada"}{"name":"Bob"}`, wantErr: true},
		{name: "not json", body: `name=Ada`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), r, &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errBadJSON) {
					t.Errorf("error %v does not wrap errBadJSON", err)
				}
				return
			}
			if p.Name != tt.want {
				t.Errorf("Name = %q, want %q", p.Name, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{"line\x00break", "linebreak"},
		{"tab\there", "tab\there"},
		{"multi\nline", "multi\nline"},
	}

	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
