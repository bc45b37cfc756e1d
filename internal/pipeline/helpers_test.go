package pipeline

import (
	"context"
	"net/http"
	"testing"

	"github.com/tjfontaine/itsm-client/internal/apierr"
	"github.com/tjfontaine/itsm-client/internal/core/domain"
	"github.com/tjfontaine/itsm-client/internal/testutil"
)

type ticket struct {
	ID          int    `json:"id"`
	TicketTitle string `json:"ticket_title"`
}

func TestCall_StructTargetUsesWireNames(t *testing.T) {
	f := newFixture(t)
	f.server.Handle(http.MethodGet, "/tickets/7", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{"id": 7, "ticket_title": "VPN"})
	})

	got, err := Call[ticket](context.Background(), f.client, &domain.Request{Method: http.MethodGet, Path: "/api/v1/tickets/7"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got.ID != 7 || got.TicketTitle != "VPN" {
		t.Errorf("Call() = %+v", got)
	}
}

func TestCall_MapTargetUsesApplicationNames(t *testing.T) {
	f := newFixture(t)
	f.server.Handle(http.MethodGet, "/tickets/7", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{"ticket_title": "VPN"})
	})

	got, err := Call[map[string]any](context.Background(), f.client, &domain.Request{Method: http.MethodGet, Path: "/api/v1/tickets/7"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got["ticketTitle"] != "VPN" {
		t.Errorf("Call() = %v, want ticketTitle", got)
	}
}

func TestDecode_TypeMismatchIsParseError(t *testing.T) {
	resp := &domain.Response{Raw: []byte(`{"id":"seven"}`), Data: map[string]any{"id": "seven"}}
	var out ticket
	if err := Decode(resp, &out); apierr.KindOf(err) != apierr.KindParse {
		t.Errorf("Decode() error = %v, want parse error", err)
	}
}

func TestPageParams_Values(t *testing.T) {
	p := PageParams{
		Page:      2,
		PageSize:  20,
		SortBy:    "createdAt",
		SortOrder: "desc",
		Filters:   map[string]any{"status": "open", "priority": 3, "assignee": nil},
	}

	got := p.Values().Encode()
	want := "filters%5Bpriority%5D=3&filters%5Bstatus%5D=open&page=2&pageSize=20&sortBy=createdAt&sortOrder=desc"
	if got != want {
		t.Errorf("Values() = %q, want %q", got, want)
	}
}

func TestGetPaginated_SendsQuery(t *testing.T) {
	f := newFixture(t)
	f.server.Handle(http.MethodGet, "/tickets", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{
			"items":         []any{},
			"status_filter": r.URL.Query().Get("filters[status]"),
		})
	})

	resp, err := f.client.GetPaginated(context.Background(), "/api/v1/tickets", PageParams{
		Page:    1,
		Filters: map[string]any{"status": "open"},
	})
	if err != nil {
		t.Fatalf("GetPaginated() error = %v", err)
	}
	data, _ := resp.Data.(map[string]any)
	if data["statusFilter"] != "open" {
		t.Errorf("filters[status] = %v, want open", data["statusFilter"])
	}
}

func TestBatchOperation(t *testing.T) {
	f := newFixture(t)
	f.server.Handle(http.MethodPost, "/tickets/batch", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{"affected_rows": 2})
	})

	resp, err := f.client.BatchOperation(context.Background(), "/api/v1/tickets/batch", "close", []any{
		map[string]any{"ticketId": 1},
		map[string]any{"ticketId": 2},
	})
	if err != nil {
		t.Fatalf("BatchOperation() error = %v", err)
	}

	body := string(f.server.RequestsTo("/api/v1/tickets/batch")[0].Body)
	if body != `{"data":[{"ticket_id":1},{"ticket_id":2}],"operation":"close"}` {
		t.Errorf("body = %s", body)
	}
	data, _ := resp.Data.(map[string]any)
	if _, ok := data["affectedRows"]; !ok {
		t.Errorf("Data = %v, want affectedRows", resp.Data)
	}
}

func TestQuery(t *testing.T) {
	got := Query(map[string]any{"page": 1, "status": nil, "tag": []string{"a", "b"}})
	if got.Get("page") != "1" {
		t.Errorf("page = %q", got.Get("page"))
	}
	if got.Has("status") {
		t.Error("nil value was kept")
	}
	if len(got["tag"]) != 2 {
		t.Errorf("tag = %v", got["tag"])
	}
}
