package session

import (
	"context"
	"errors"
	"net/url"
	"os"
	"testing"

	"github.com/tjfontaine/itsm-client/internal/apierr"
	"github.com/tjfontaine/itsm-client/internal/credentials"
	"github.com/tjfontaine/itsm-client/internal/pipeline"
	"github.com/tjfontaine/itsm-client/internal/storage/memory"
	"github.com/tjfontaine/itsm-client/internal/testutil"
)

func TestCassette_TicketFlow(t *testing.T) {
	// Skip if no password and not in replay mode
	if os.Getenv("ITSM_PASSWORD") == "" && os.Getenv("ITSM_VCR_MODE") == "record" {
		t.Skip("Skipping test: ITSM_PASSWORD not set")
	}

	recorder, cleanup := testutil.NewVCRRecorder(t, "itsm_ticket_flow")
	defer cleanup()

	baseURL := os.Getenv("ITSM_VCR_BASE_URL")
	if baseURL == "" {
		baseURL = "https://itsm.example.test"
	}
	password := os.Getenv("ITSM_PASSWORD")
	if password == "" {
		password = testutil.FakePassword
	}

	store := credentials.New(memory.New())
	client, err := pipeline.New(baseURL, store, pipeline.WithHTTPClient(testutil.VCRHTTPClient(recorder)))
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	m := New(client, store)
	ctx := context.Background()

	result, err := m.Login(ctx, testutil.FakeUsername, password, testutil.FakeTenantCode)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.DisplayName == "" {
		t.Error("Expected display name in login result")
	}
	if store.Get().TenantCode != testutil.FakeTenantCode {
		t.Errorf("tenant = %q", store.Get().TenantCode)
	}

	resp, err := client.GetPaginated(ctx, "/api/v1/tickets", pipeline.PageParams{
		Page: 1, PageSize: 20, SortBy: "createdAt", SortOrder: "desc",
	})
	if err != nil {
		t.Fatalf("GetPaginated() error = %v", err)
	}
	page, _ := resp.Data.(map[string]any)
	if _, ok := page["pageSize"]; !ok {
		t.Errorf("page keys = %v, want pageSize", page)
	}
	items, _ := page["items"].([]any)
	if len(items) == 0 {
		t.Fatal("Expected at least one ticket")
	}
	first, _ := items[0].(map[string]any)
	if first["ticketNumber"] == nil || first["createdAt"] == nil {
		t.Errorf("ticket keys = %v, want application case", first)
	}

	_, err = client.Get(ctx, "/api/v1/tickets/99", nil)
	var apiErr *apierr.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindBusiness {
		t.Fatalf("error = %v, want business error", err)
	}
	if apiErr.RequestID == "" {
		t.Error("Expected request id on business error")
	}

	csv, err := client.Download(ctx, "/api/v1/reports/export", url.Values{"format": {"csv"}})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if len(csv) == 0 || string(csv[:3]) != "id," {
		t.Errorf("Download() = %q", csv)
	}
}
