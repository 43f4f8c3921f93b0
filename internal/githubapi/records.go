package githubapi

import "time"

// UnknownLogin is the aggregation key for authors that are missing or deleted.
const UnknownLogin = "Unknown"

// Author is either a known GitHub login or the unknown author. The zero value is unknown.
type Author struct {
	login string
}

// KnownAuthor returns an author identified by login. An empty login yields the unknown author.
func KnownAuthor(login string) Author {
	return Author{login: login}
}

// UnknownAuthor returns the author used for ghost or deleted accounts.
func UnknownAuthor() Author {
	return Author{}
}

// Login returns the login and whether the author is known.
func (a Author) Login() (string, bool) {
	return a.login, a.login != ""
}

// Key returns the login used to aggregate contributions, UnknownLogin for unknown authors.
func (a Author) Key() string {
	if a.login == "" {
		return UnknownLogin
	}
	return a.login
}

// String implements fmt.Stringer.
func (a Author) String() string {
	return a.Key()
}

// ReviewState is the disposition of a pull request review.
type ReviewState string

const (
	// ReviewApproved is an approving review.
	ReviewApproved ReviewState = "APPROVED"
	// ReviewCommented is a comment-only review.
	ReviewCommented ReviewState = "COMMENTED"
	// ReviewChangesRequested is a review requesting changes.
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
)

// Review is one review on a pull request.
type Review struct {
	Author Author
	State  ReviewState
}

// Comment is one conversation comment on a pull request.
type Comment struct {
	Author Author
}

// PullRequest is one merged pull request with its embedded reviews and comments.
type PullRequest struct {
	MergedAt     time.Time
	Additions    uint64
	Deletions    uint64
	ChangedFiles uint64
	Author       Author
	Reviews      []Review
	Comments     []Comment
	// ReviewsTruncated and CommentsTruncated report nested lists cut off at the nested page size.
	ReviewsTruncated  bool
	CommentsTruncated bool
}
