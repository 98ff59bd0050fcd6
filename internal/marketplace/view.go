package marketplace

import (
	"encoding/json"
	"fmt"
)

// ViewStatus tags the outcome of a listing query.
type ViewStatus int

const (
	// ViewNotFound means the listing does not exist, including the sentinel id.
	ViewNotFound ViewStatus = iota
	// ViewFound means every field was read from the ledger.
	ViewFound
	// ViewQueryFailed means the ledger could not be queried; the listing may
	// or may not exist.
	ViewQueryFailed
)

func (s ViewStatus) String() string {
	switch s {
	case ViewNotFound:
		return "not_found"
	case ViewFound:
		return "found"
	case ViewQueryFailed:
		return "query_failed"
	default:
		return fmt.Sprintf("view_status(%d)", int(s))
	}
}

// MarshalJSON implements json.Marshaler.
func (s ViewStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ListingView is the result of RefreshListingView.
type ListingView struct {
	Status  ViewStatus
	Listing Listing
	// Reason is set when Status is ViewQueryFailed or when a non-sentinel
	// listing was not found.
	Reason error
}

// Found builds a view of an existing listing.
func Found(l Listing) ListingView {
	return ListingView{Status: ViewFound, Listing: l}
}

// NotFound builds a view of a listing that does not exist.
func NotFound(app AppID, reason error) ListingView {
	return ListingView{Status: ViewNotFound, Listing: Listing{AppID: app}, Reason: reason}
}

// QueryFailed builds a view for a listing whose state could not be read.
func QueryFailed(app AppID, reason error) ListingView {
	return ListingView{Status: ViewQueryFailed, Listing: Listing{AppID: app}, Reason: reason}
}

// Fields returns the listing fields for display. Anything other than a found
// listing yields zero values, so an unqueryable listing looks like a
// nonexistent one.
func (v ListingView) Fields() Listing {
	if v.Status != ViewFound {
		return Listing{}
	}
	return v.Listing
}

// Equal compares two views by status and fields, ignoring error identity.
func (v ListingView) Equal(other ListingView) bool {
	return v.Status == other.Status && v.Listing == other.Listing
}

type listingViewJSON struct {
	Status  ViewStatus `json:"status"`
	Listing Listing    `json:"listing"`
	Reason  string     `json:"reason,omitempty"`
}

// MarshalJSON implements json.Marshaler. Listing fields are zeroed unless the
// listing was found.
func (v ListingView) MarshalJSON() ([]byte, error) {
	out := listingViewJSON{Status: v.Status, Listing: v.Fields()}
	if v.Status != ViewFound {
		out.Listing.AppID = v.Listing.AppID
	}
	if v.Reason != nil {
		out.Reason = v.Reason.Error()
	}
	return json.Marshal(out)
}
