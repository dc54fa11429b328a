package records

import (
	"encoding/json"
	"testing"
	"time"

	"planharvest/internal/scrapers/planbuild"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestEpochMillisDate(t *testing.T) {
	cases := []struct {
		raw  string
		want *time.Time
	}{
		{raw: `1700000000000`, want: date(2023, time.November, 14)},
		{raw: `"1700000000000"`, want: date(2023, time.November, 14)},
		{raw: `" 1700000000000 "`, want: date(2023, time.November, 14)},
		{raw: `1700000000000.0`, want: date(2023, time.November, 14)},
		// 23:59:59.999 UTC stays on the same day
		{raw: `1700006399999`, want: date(2023, time.November, 14)},
		{raw: `631152000000`, want: date(1990, time.January, 1)},
		{raw: `631151999999`},
		{raw: `4102444800000`},
		{raw: `-1`},
		{raw: `1e300`},
		{raw: ``},
		{raw: `null`},
		{raw: `"soon"`},
		{raw: `"NaN"`},
		{raw: `true`},
		{raw: `{"ms":1700000000000}`},
		{raw: `[1700000000000]`},
	}

	for _, test := range cases {
		got, ok := EpochMillisDate(json.RawMessage(test.raw))
		if test.want == nil {
			require.False(t, ok, test.raw)
			require.True(t, got.IsZero(), test.raw)
			continue
		}
		require.True(t, ok, test.raw)
		require.Equal(t, *test.want, got, test.raw)
	}
}

func TestNormalize(t *testing.T) {
	var raw planbuild.RawListingRecord
	err := json.Unmarshal([]byte(`{
		"description": "  Dwelling extension ",
		"addressString": "1 Example Street, Hobart TAS 7000",
		"referenceNumber": " DA-100 ",
		"pid": 1234567,
		"uuid": "8b5d-uuid",
		"startDate": 1700000000000,
		"endDate": "1701209600000",
		"applicant": "not trusted"
	}`), &raw)
	require.NoError(t, err)

	scraped := time.Date(2024, time.March, 2, 10, 30, 0, 0, time.FixedZone("AEDT", 11*60*60))
	got := Normalize(raw, "HOBART", scraped)

	want := ApplicationRecord{
		CouncilReference: "DA-100",
		Description:      "Dwelling extension",
		DateScraped:      scraped.UTC(),
		DateReceived:     date(2023, time.November, 14),
		OnNoticeTo:       date(2023, time.November, 28),
		Address:          "1 Example Street, Hobart TAS 7000",
		PidReference:     "1234567",
		UUID:             "8b5d-uuid",
		Jurisdiction:     "HOBART",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("normalized record mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	var raw planbuild.RawListingRecord
	require.NoError(t, json.Unmarshal([]byte(`{"startDate":"tomorrow","endDate":null,"pid":null}`), &raw))

	got := Normalize(raw, "", time.Unix(0, 0))
	require.Nil(t, got.DateReceived)
	require.Nil(t, got.OnNoticeTo)
	require.Empty(t, got.CouncilReference)
	require.Empty(t, got.PidReference)
	require.Empty(t, got.Applicant)
	require.Empty(t, got.TitleReference)
}
