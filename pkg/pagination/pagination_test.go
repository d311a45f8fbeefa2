package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxWithQuery(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		limit  int
		offset int
	}{
		{"defaults", "", DefaultLimit, 0},
		{"custom", "limit=50&offset=10", 50, 10},
		{"clamped", "limit=5000", MaxLimit, 0},
		{"negative offset", "offset=-3", DefaultLimit, 0},
		{"garbage", "limit=abc&offset=xyz", DefaultLimit, 0},
		{"zero limit", "limit=0", DefaultLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromContext(ctxWithQuery(tt.query))
			if p.Limit != tt.limit || p.Offset != tt.offset {
				t.Errorf("expected limit=%d offset=%d, got %+v", tt.limit, tt.offset, p)
			}
		})
	}
}

func TestFromContextWithLimits(t *testing.T) {
	p := FromContextWithLimits(ctxWithQuery(""), 100, 1000)
	if p.Limit != 100 {
		t.Errorf("expected default 100, got %d", p.Limit)
	}
	p = FromContextWithLimits(ctxWithQuery("limit=1001"), 100, 1000)
	if p.Limit != 1000 {
		t.Errorf("expected clamp to 1000, got %d", p.Limit)
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 50, 20, 0)
	if resp.Total != 50 || !resp.HasMore {
		t.Errorf("unexpected response %+v", resp)
	}
	if NewResponse(nil, 20, 20, 0).HasMore {
		t.Error("expected no more on the last page")
	}
}

func TestParams_Next(t *testing.T) {
	p := Params{Limit: 10, Offset: 20}
	if !p.HasNext(31) || p.HasNext(30) {
		t.Error("unexpected HasNext")
	}
	if p.NextOffset() != 30 {
		t.Errorf("expected 30, got %d", p.NextOffset())
	}
}
