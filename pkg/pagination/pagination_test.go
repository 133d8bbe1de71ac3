package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantQuery  string
	}{
		{"", DefaultLimit, 0, ""},
		{"limit=5&offset=10", 5, 10, ""},
		{"limit=1000", MaxLimit, 0, ""},
		{"limit=-3&offset=-1", DefaultLimit, 0, ""},
		{"limit=abc&q=+doe+", DefaultLimit, 0, "doe"},
	}
	for _, tt := range tests {
		p := FromContext(contextFor(tt.query))
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset || p.Query != tt.wantQuery {
			t.Errorf("FromContext(%q) = %+v", tt.query, p)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	p := Params{Limit: 10, Offset: 0}
	if !NewResponse(nil, 25, p).HasMore {
		t.Error("expected more results")
	}
	p.Offset = 20
	resp := NewResponse([]int{}, 25, p)
	if resp.HasMore {
		t.Error("expected last page")
	}
	if !resp.Success {
		t.Error("expected success flag")
	}
}

func TestLike(t *testing.T) {
	if (Params{}).Like() != "" {
		t.Error("expected empty pattern")
	}
	if got := (Params{Query: "50%_a"}).Like(); got != `%50\%\_a%` {
		t.Errorf("unexpected pattern %q", got)
	}
}
