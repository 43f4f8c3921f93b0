package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cam3ron2/github-review-stats/internal/paginate"
	"github.com/google/go-github/v75/github"
)

const listOrgRepositoriesOp = "list org repositories"

// RepositoryLister lists organization repositories through the go-github REST client.
// Cursors are REST page numbers.
type RepositoryLister struct {
	rest     *github.Client
	pageSize int
}

// NewRepositoryLister creates a lister. A non-positive pageSize uses GitHub's maximum of 100.
func NewRepositoryLister(rest *RESTClient, pageSize int) (*RepositoryLister, error) {
	if rest == nil || rest.Client == nil {
		return nil, fmt.Errorf("rest client is required")
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &RepositoryLister{rest: rest.Client, pageSize: pageSize}, nil
}

// ListRepositories fetches the page of repository names that starts at cursor.
func (l *RepositoryLister) ListRepositories(ctx context.Context, org string, cursor paginate.Cursor) (paginate.Page[string], error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return paginate.Page[string]{}, fmt.Errorf("organization is required")
	}

	pageNumber := 1
	if cursor != "" {
		parsed, err := strconv.Atoi(string(cursor))
		if err != nil || parsed < 1 {
			return paginate.Page[string]{}, fmt.Errorf("invalid repository page cursor %q", cursor)
		}
		pageNumber = parsed
	}

	repos, resp, err := l.rest.Repositories.ListByOrg(ctx, trimmedOrg, &github.RepositoryListByOrgOptions{
		Type: "all",
		ListOptions: github.ListOptions{
			Page:    pageNumber,
			PerPage: l.pageSize,
		},
	})
	if err != nil {
		return paginate.Page[string]{}, classifyRESTError(listOrgRepositoriesOp, resp, err)
	}

	page := paginate.Page[string]{
		Items: make([]string, 0, len(repos)),
	}
	for _, repo := range repos {
		name := strings.TrimSpace(repo.GetName())
		if name == "" {
			continue
		}
		page.Items = append(page.Items, name)
	}
	if resp != nil && resp.NextPage > 0 {
		page.HasMore = true
		page.NextCursor = paginate.Cursor(strconv.Itoa(resp.NextPage))
	}
	return page, nil
}

func classifyRESTError(op string, resp *github.Response, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &DecodeError{Op: op, Err: err}
	}

	transportErr := &TransportError{Op: op, Status: EndpointStatusUnavailable, Err: err}
	if resp != nil && resp.Response != nil {
		transportErr.StatusCode = resp.StatusCode
		transportErr.Status = endpointStatusFromHTTP(resp.StatusCode)
	}
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		transportErr.Status = EndpointStatusRateLimited
	}
	return transportErr
}
