package planbuild

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const report_client_fetch_listing = "client.fetch-listing"

// listingArrayFields are the object fields the listing array has been wrapped in across
// endpoint versions, in order of preference.
var listingArrayFields = []string{"advertisements", "data", "results"}

type listingRequest struct {
	Lgas              []string `json:"lgas,omitempty"`
	LgaCode           string   `json:"lgaCode,omitempty"`
	AdvertisementType string   `json:"advertisementType"`
	Offset            int      `json:"offset"`
	PageSize          int      `json:"pageSize"`
	SortField         string   `json:"sortField"`
	SortDirection     string   `json:"sortDirection"`
}

func (c *Client) newListingRequest(code string, offset int) listingRequest {
	req := listingRequest{
		AdvertisementType: "ALL",
		Offset:            offset,
		PageSize:          c.opts.PageSize,
		SortField:         "advertisedDate",
		SortDirection:     "DESC",
	}
	if c.opts.LegacyLgaField {
		req.LgaCode = code
	} else {
		req.Lgas = []string{code}
	}
	return req
}

// FetchListing returns every advertisement the portal lists for one jurisdiction. The next
// offset is the number of records received so far, so a portal serving smaller pages than
// requested is still read to the end. Paging stops at the reported total when the response
// carries one, otherwise at the first empty page, and never goes past MaxPages. Any failing
// page fails the whole jurisdiction with a *ListingFetchError.
func (c *Client) FetchListing(ctx context.Context, code string, session Session) ([]RawListingRecord, error) {
	var records []RawListingRecord

	for page := 0; ; page++ {
		if page == c.opts.MaxPages {
			c.tel.ReportWarning(report_client_fetch_listing, code, "max pages reached", len(records))
			break
		}

		batch, err := c.fetchListingPage(ctx, code, session, len(records))
		if err != nil {
			c.tel.ReportWarning(report_client_fetch_listing, code, page, err)
			return nil, err
		}
		records = append(records, batch.Records...)
		if len(batch.Records) == 0 {
			break
		}
		if batch.HasTotal && len(records) >= batch.Total {
			break
		}
	}

	c.tel.ReportDebug(report_client_fetch_listing, code, len(records))
	return records, nil
}

func (c *Client) fetchListingPage(ctx context.Context, code string, session Session, offset int) (listingPage, error) {
	body, err := json.Marshal(c.newListingRequest(code, offset))
	if err != nil {
		return listingPage{}, &ListingFetchError{Jurisdiction: code, Err: fmt.Errorf("json marshal: %w", err)}
	}

	res, err := c.authRequest(ctx, session).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(c.opts.Endpoints.Listing)
	if err != nil {
		return listingPage{}, &ListingFetchError{Jurisdiction: code, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		lerr := &ListingFetchError{
			Jurisdiction: code,
			Status:       res.StatusCode(),
			Body:         truncateBody(res.Body()),
		}
		if isUnauthenticated(res.StatusCode()) {
			lerr.Err = ErrUnauthenticated
		}
		return listingPage{}, lerr
	}

	page, err := decodeListingPage(res.Body())
	if err != nil {
		return listingPage{}, &ListingFetchError{
			Jurisdiction: code,
			Status:       res.StatusCode(),
			Body:         truncateBody(res.Body()),
			Err:          err,
		}
	}
	return page, nil
}

var errListingShape = errors.New("listing is neither an array nor an object wrapping one")

// listingTotalFields carry the number of records the listing has across all pages.
var listingTotalFields = []string{"total", "totalCount", "totalElements"}

type listingPage struct {
	Records []RawListingRecord
	// Total is only meaningful when HasTotal is set, bare arrays never carry it.
	Total    int
	HasTotal bool
}

// DecodeListing accepts a bare JSON array of records or an object carrying the array under
// one of the known fields, and returns the records as a plain slice.
func DecodeListing(body []byte) ([]RawListingRecord, error) {
	page, err := decodeListingPage(body)
	if err != nil {
		return nil, err
	}
	return page.Records, nil
}

func decodeListingPage(body []byte) (listingPage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return listingPage{}, errListingShape
	}

	switch body[0] {
	case '[':
		var records []RawListingRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return listingPage{}, fmt.Errorf("decode listing array: %w", err)
		}
		return listingPage{Records: records}, nil
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return listingPage{}, fmt.Errorf("decode listing object: %w", err)
		}
		for _, field := range listingArrayFields {
			raw := bytes.TrimSpace(wrapper[field])
			if len(raw) == 0 || raw[0] != '[' {
				continue
			}
			page := listingPage{}
			if err := json.Unmarshal(raw, &page.Records); err != nil {
				return listingPage{}, fmt.Errorf("decode listing field %q: %w", field, err)
			}
			for _, totalField := range listingTotalFields {
				rawTotal := bytes.TrimSpace(wrapper[totalField])
				if len(rawTotal) == 0 || string(rawTotal) == "null" {
					continue
				}
				if json.Unmarshal(rawTotal, &page.Total) == nil {
					page.HasTotal = true
					break
				}
			}
			return page, nil
		}
	}

	return listingPage{}, errListingShape
}
