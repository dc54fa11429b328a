package planbuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"planharvest/internal/components/telemetry"
	"planharvest/internal/scrapers/planbuild/planbuildtest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestClient(t testing.TB, portal *planbuildtest.Portal, opts Options) *Client {
	t.Helper()
	opts.BaseUrl = portal.URL()
	client, err := NewClient(opts, telemetry.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestAcquireSession(t *testing.T) {
	portal := planbuildtest.NewPortal()
	defer portal.Close()

	client := newTestClient(t, portal, Options{})
	session, err := client.AcquireSession(context.Background())
	require.NoError(t, err)

	require.Equal(t, "session-1", session.Credential)
	require.Equal(t, "token-1", session.CSRFToken)
	require.Equal(t, planbuildtest.CSRFHeader, session.CSRFHeader)
	require.False(t, session.IssuedAt.IsZero())
}

func TestAcquireSessionHeaderName(t *testing.T) {
	portal := planbuildtest.NewPortal()
	defer portal.Close()
	client := newTestClient(t, portal, Options{})

	portal.HeaderName = "X-XSRF-TOKEN"
	session, err := client.AcquireSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "X-XSRF-TOKEN", session.CSRFHeader)

	portal.HeaderName = ""
	session, err = client.AcquireSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, DefaultCSRFHeader, session.CSRFHeader)
	require.Equal(t, "token-2", session.CSRFToken)
}

func TestAcquireSessionFailures(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(p *planbuildtest.Portal)
		status int
	}{
		{
			name:  "missing cookie",
			setup: func(p *planbuildtest.Portal) { p.OmitCookie = true },
		},
		{
			name:  "missing token",
			setup: func(p *planbuildtest.Portal) { p.OmitToken = true },
		},
		{
			name:   "landing page unavailable",
			setup:  func(p *planbuildtest.Portal) { p.LandingStatus = http.StatusServiceUnavailable },
			status: http.StatusServiceUnavailable,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			portal := planbuildtest.NewPortal()
			defer portal.Close()
			test.setup(portal)

			tel := telemetry.NewRecorder()
			client, err := NewClient(Options{BaseUrl: portal.URL()}, tel)
			require.NoError(t, err)

			_, err = client.AcquireSession(context.Background())
			var bootstrapErr *AuthBootstrapError
			require.ErrorAs(t, err, &bootstrapErr)
			require.Equal(t, test.status, bootstrapErr.Status)
			require.Len(t, tel.Reports("broken", report_client_acquire_session), 1)
		})
	}
}

func TestAcquireSessionNotRetried(t *testing.T) {
	portal := planbuildtest.NewPortal()
	defer portal.Close()
	portal.LandingStatus = http.StatusServiceUnavailable
	portal.ListingStatus["LGA003"] = http.StatusServiceUnavailable

	client := newTestClient(t, portal, Options{Retries: 2})
	_, err := client.AcquireSession(context.Background())
	var bootstrapErr *AuthBootstrapError
	require.ErrorAs(t, err, &bootstrapErr)
	require.Equal(t, 1, portal.Counts().Landing)

	// other requests keep the transport retry policy
	portal.LandingStatus = 0
	session, err := client.AcquireSession(context.Background())
	require.NoError(t, err)
	_, err = client.FetchListing(context.Background(), "LGA003", session)
	require.Error(t, err)
	require.Equal(t, 3, portal.Counts().Listing)
}

func TestListingShapes(t *testing.T) {
	var baseline []RawListingRecord
	for _, wrap := range []string{"", "advertisements", "data", "results"} {
		t.Run("wrap="+wrap, func(t *testing.T) {
			portal := planbuildtest.NewPortal()
			defer portal.Close()
			portal.WrapField = wrap
			portal.Listings["HOBART"] = []map[string]any{
				planbuildtest.Record("DA-100", "uuid-100", 1700000000000),
				planbuildtest.Record("DA-101", "uuid-101", 1700000000000),
			}

			client := newTestClient(t, portal, Options{})
			session, err := client.AcquireSession(context.Background())
			require.NoError(t, err)

			records, err := client.FetchListing(context.Background(), "HOBART", session)
			require.NoError(t, err)
			require.Len(t, records, 2)
			require.Equal(t, "DA-100", records[0].ReferenceNumber.String())
			require.Equal(t, "1234567", records[0].Pid.String())

			if baseline == nil {
				baseline = records
				return
			}
			if diff := cmp.Diff(baseline, records); diff != "" {
				t.Fatalf("listing differs from bare array (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListingRequestBody(t *testing.T) {
	portal := planbuildtest.NewPortal()
	defer portal.Close()
	portal.Listings["HOBART"] = []map[string]any{planbuildtest.Record("DA-100", "uuid-100", 1)}

	client := newTestClient(t, portal, Options{})
	session, err := client.AcquireSession(context.Background())
	require.NoError(t, err)
	_, err = client.FetchListing(context.Background(), "HOBART", session)
	require.NoError(t, err)

	legacy := newTestClient(t, portal, Options{LegacyLgaField: true})
	session, err = legacy.AcquireSession(context.Background())
	require.NoError(t, err)
	_, err = legacy.FetchListing(context.Background(), "HOBART", session)
	require.NoError(t, err)

	// one page with the record, one empty page
	bodies := portal.ListingBodies()
	require.Len(t, bodies, 4)

	require.Equal(t, []any{"HOBART"}, bodies[0]["lgas"])
	require.NotContains(t, bodies[0], "lgaCode")
	require.Equal(t, "ALL", bodies[0]["advertisementType"])
	require.Equal(t, float64(DefaultPageSize), bodies[0]["pageSize"])
	require.Equal(t, "advertisedDate", bodies[0]["sortField"])
	require.Equal(t, "DESC", bodies[0]["sortDirection"])

	require.Equal(t, "HOBART", bodies[2]["lgaCode"])
	require.NotContains(t, bodies[2], "lgas")
}

func TestListingPagination(t *testing.T) {
	portal := planbuildtest.NewPortal()
	defer portal.Close()
	for _, ref := range []string{"DA-1", "DA-2", "DA-3", "DA-4", "DA-5"} {
		portal.Listings["LAUNCESTON"] = append(
			portal.Listings["LAUNCESTON"],
			planbuildtest.Record(ref, "uuid-"+ref, 1700000000000),
		)
	}

	client := newTestClient(t, portal, Options{PageSize: 2})
	session, err := client.AcquireSession(context.Background())
	require.NoError(t, err)

	records, err := client.FetchListing(context.Background(), "LAUNCESTON", session)
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.Equal(t, "DA-5", records[4].ReferenceNumber.String())

	var offsets []float64
	for _, body := range portal.ListingBodies() {
		offsets = append(offsets, body["offset"].(float64))
	}
	require.Equal(t, []float64{0, 2, 4, 5}, offsets)

	capped := newTestClient(t, portal, Options{PageSize: 2, MaxPages: 2})
	session, err = capped.AcquireSession(context.Background())
	require.NoError(t, err)
	records, err = capped.FetchListing(context.Background(), "LAUNCESTON", session)
	require.NoError(t, err)
	require.Len(t, records, 4)
}

func listingOffsets(portal *planbuildtest.Portal) []float64 {
	var offsets []float64
	for _, body := range portal.ListingBodies() {
		offsets = append(offsets, body["offset"].(float64))
	}
	return offsets
}

func TestListingCappedPageSize(t *testing.T) {
	cases := []struct {
		name    string
		wrap    string
		offsets []float64
	}{
		{name: "with total", wrap: "data", offsets: []float64{0, 50, 100}},
		{name: "bare array", wrap: "", offsets: []float64{0, 50, 100, 120}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			portal := planbuildtest.NewPortal()
			defer portal.Close()
			portal.WrapField = tc.wrap
			portal.MaxPageSize = 50
			for i := range 120 {
				ref := fmt.Sprintf("DA-%03d", i)
				portal.Listings["LGA003"] = append(
					portal.Listings["LGA003"],
					planbuildtest.Record(ref, "uuid-"+ref, 1700000000000),
				)
			}

			client := newTestClient(t, portal, Options{PageSize: 100})
			session, err := client.AcquireSession(context.Background())
			require.NoError(t, err)

			records, err := client.FetchListing(context.Background(), "LGA003", session)
			require.NoError(t, err)
			require.Len(t, records, 120)
			require.Equal(t, "DA-000", records[0].ReferenceNumber.String())
			require.Equal(t, "DA-119", records[119].ReferenceNumber.String())
			require.Equal(t, tc.offsets, listingOffsets(portal))
		})
	}
}

func TestListingTimeout(t *testing.T) {
	portal := planbuildtest.NewPortal()
	defer portal.Close()
	portal.ListingDelay["LGA003"] = 5 * time.Second

	client := newTestClient(t, portal, Options{Timeout: 200 * time.Millisecond})
	session, err := client.AcquireSession(context.Background())
	require.NoError(t, err)

	_, err = client.FetchListing(context.Background(), "LGA003", session)
	var listingErr *ListingFetchError
	require.ErrorAs(t, err, &listingErr)
	require.Equal(t, "LGA003", listingErr.Jurisdiction)
	require.Zero(t, listingErr.Status)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}

func TestListingErrors(t *testing.T) {
	portal := planbuildtest.NewPortal()
	defer portal.Close()
	portal.ListingStatus["KINGBOROUGH"] = http.StatusBadRequest

	client := newTestClient(t, portal, Options{})
	session, err := client.AcquireSession(context.Background())
	require.NoError(t, err)

	_, err = client.FetchListing(context.Background(), "KINGBOROUGH", session)
	var listingErr *ListingFetchError
	require.ErrorAs(t, err, &listingErr)
	require.Equal(t, "KINGBOROUGH", listingErr.Jurisdiction)
	require.Equal(t, http.StatusBadRequest, listingErr.Status)
	require.Contains(t, listingErr.Body, "listing unavailable")
	require.False(t, errors.Is(err, ErrUnauthenticated))

	portal.ExpireSessions()
	_, err = client.FetchListing(context.Background(), "HOBART", session)
	require.ErrorAs(t, err, &listingErr)
	require.Equal(t, http.StatusUnauthorized, listingErr.Status)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDecodeListing(t *testing.T) {
	bare, err := DecodeListing([]byte(`[{"referenceNumber":" DA-1 ","pid":42,"uuid":null}]`))
	require.NoError(t, err)
	require.Len(t, bare, 1)
	require.Equal(t, FlexString("DA-1"), bare[0].ReferenceNumber)
	require.Equal(t, FlexString("42"), bare[0].Pid)
	require.Equal(t, FlexString(""), bare[0].UUID)

	// the first array-valued field wins
	wrapped, err := DecodeListing([]byte(`{"advertisements":null,"data":[{"referenceNumber":"DA-1","pid":"42"}]}`))
	require.NoError(t, err)
	require.Equal(t, bare[0].ReferenceNumber, wrapped[0].ReferenceNumber)
	require.Equal(t, bare[0].Pid, wrapped[0].Pid)

	page, err := decodeListingPage([]byte(`{"data":[{"referenceNumber":"DA-1"}],"total":120}`))
	require.NoError(t, err)
	require.True(t, page.HasTotal)
	require.Equal(t, 120, page.Total)

	page, err = decodeListingPage([]byte(`{"results":[],"totalElements":"many","total":null}`))
	require.NoError(t, err)
	require.False(t, page.HasTotal)

	empty, err := DecodeListing([]byte(` [] `))
	require.NoError(t, err)
	require.Empty(t, empty)

	for _, body := range []string{``, `"listing"`, `{"items":[]}`, `{"data":{}}`, `[1,`} {
		_, err := DecodeListing([]byte(body))
		require.Error(t, err, body)
	}
}

func TestAttachments(t *testing.T) {
	portal := planbuildtest.NewPortal()
	defer portal.Close()
	portal.Attachments["uuid-100"] = []planbuildtest.Attachment{
		{ID: "a1", Name: "Plans.pdf", Content: []byte("%PDF-1")},
		{ID: "a2", Name: "Report (final).pdf", Status: http.StatusInternalServerError},
	}
	portal.ManifestStatus["uuid-broken"] = http.StatusNotFound

	client := newTestClient(t, portal, Options{})
	ctx := context.Background()
	session, err := client.AcquireSession(ctx)
	require.NoError(t, err)

	manifest, err := client.FetchManifest(ctx, "uuid-100", session)
	require.NoError(t, err)
	require.Equal(t, []Attachment{
		{ID: "a1", Name: "Plans.pdf"},
		{ID: "a2", Name: "Report (final).pdf"},
	}, manifest)

	content, err := client.DownloadAttachment(ctx, "uuid-100", "a1", session)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1"), content)

	_, err = client.DownloadAttachment(ctx, "uuid-100", "a2", session)
	var downloadErr *AttachmentDownloadError
	require.ErrorAs(t, err, &downloadErr)
	require.Equal(t, "a2", downloadErr.AttachmentID)
	require.Equal(t, http.StatusInternalServerError, downloadErr.Status)

	var manifestErr *ManifestFetchError
	_, err = client.FetchManifest(ctx, "uuid-broken", session)
	require.ErrorAs(t, err, &manifestErr)
	require.Equal(t, http.StatusNotFound, manifestErr.Status)

	before := portal.Counts().Manifest
	_, err = client.FetchManifest(ctx, "", session)
	require.ErrorAs(t, err, &manifestErr)
	require.Equal(t, before, portal.Counts().Manifest)

	portal.ExpireSessions()
	_, err = client.FetchManifest(ctx, "uuid-100", session)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Plans.pdf":               "Plans.pdf",
		"Report (final) v2.pdf":   "Report__final__v2.pdf",
		"site-plan_A3.PDF":        "site-plan_A3.PDF",
		"../../etc/passwd":        ".._.._etc_passwd",
		"Übersicht.pdf":           "_bersicht.pdf",
		"   ":                     "attachment",
		"":                        "attachment",
		"DA 2024/100 - plans.pdf": "DA_2024_100_-_plans.pdf",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizeName(in), in)
	}
}

func TestFlexString(t *testing.T) {
	var decoded struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
		D FlexString `json:"d"`
		E FlexString `json:"e"`
	}
	err := json.Unmarshal([]byte(`{"a":"  text  ","b":12.5,"c":null,"d":{"x":1},"e":true}`), &decoded)
	require.NoError(t, err)
	require.Equal(t, FlexString("text"), decoded.A)
	require.Equal(t, FlexString("12.5"), decoded.B)
	require.Equal(t, FlexString(""), decoded.C)
	require.Equal(t, FlexString(""), decoded.D)
	require.Equal(t, FlexString("true"), decoded.E)
}
