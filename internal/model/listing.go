package model

// SortField is a column a listing may be ordered by.
type SortField string

const (
	SortByCreatedAt   SortField = "createdAt"
	SortByUpvoteCount SortField = "upvoteCount"
)

// SortOrder is the direction of a listing.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// PageMeta describes a listing window.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ProposalPage is one page of proposals plus its pagination metadata.
// It is also the value stored in the listing cache, so its JSON encoding
// must round-trip exactly.
type ProposalPage struct {
	Data []Proposal `json:"data"`
	Meta PageMeta   `json:"meta"`
}

// TotalPages returns ceil(total/limit). A non-positive limit yields 0.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
