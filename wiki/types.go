package wiki

// Constants for API paging limits.
const (
	// TitleBatchSize is the maximum number of titles one query may carry.
	TitleBatchSize = 50

	// ListBatchSize is the page size for list queries (allpages,
	// categorymembers, revisions, recentchanges).
	ListBatchSize = 500
)

// Page identifies one wiki page. Title is the wiki's natural key; ID is
// the stable identifier used for revision queries.
type Page struct {
	ID    int64  `json:"pageid"`
	Title string `json:"title"`
}

// RevisionRef is a lightweight pointer to one revision, as returned by
// listing queries that do not carry content.
type RevisionRef struct {
	PageID    int64  `json:"pageid"`
	RevID     int64  `json:"revid"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Revision is one full revision of one page, content included.
// (PageID, RevID) is globally unique; RevID ordering across all pages is
// the wiki's single linear edit order.
type Revision struct {
	PageID    int64
	RevID     int64
	Title     string
	User      string
	Timestamp string // ISO 8601, may be empty on damaged wikis
	Comment   string
	Content   string
	Minor     bool
}

// EditRequest describes one page edit (creation, modification, or
// sentinel-based deletion).
type EditRequest struct {
	Title   string
	Text    string
	Summary string

	// BaseTimestamp is the optimistic-concurrency token: the timestamp of
	// the revision this edit is based on. Empty means no conflict check.
	BaseTimestamp string
}

// EditResult reports the outcome of a successful edit.
type EditResult struct {
	Title    string
	PageID   int64
	NewRevID int64
	NewPage  bool
}
