package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/github-review-stats/internal/paginate"
)

const (
	fetchMergedPullRequestsOp = "fetch merged pull requests"
	maxGraphQLPageSize        = 100
	maxErrorBodyBytes         = 512
)

const mergedPullRequestsQuery = `query MergedPullRequests($owner: String!, $name: String!, $after: String, $first: Int!, $nested: Int!) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: $first, after: $after, states: MERGED, orderBy: {field: CREATED_AT, direction: DESC}) {
      nodes {
        mergedAt
        additions
        deletions
        changedFiles
        author { login }
        reviews(first: $nested) {
          nodes { author { login } state }
          pageInfo { hasNextPage }
        }
        comments(first: $nested) {
          nodes { author { login } }
          pageInfo { hasNextPage }
        }
      }
      pageInfo { endCursor hasNextPage }
    }
  }
}`

// PullRequestFetcher reads merged pull requests, newest-created first, with embedded reviews and comments
// from the GraphQL API.
type PullRequestFetcher struct {
	endpoint       string
	requestClient  *Client
	pageSize       int
	nestedPageSize int
}

// NewPullRequestFetcher creates a GraphQL fetcher. Page sizes outside 1..100 are clamped to 100.
func NewPullRequestFetcher(graphqlURL string, requestClient *Client, pageSize, nestedPageSize int) (*PullRequestFetcher, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}
	endpoint, err := parseAbsoluteURL(graphqlURL, defaultGraphQLURL, "github graphql url")
	if err != nil {
		return nil, err
	}
	return &PullRequestFetcher{
		endpoint:       endpoint.String(),
		requestClient:  requestClient,
		pageSize:       clampPageSize(pageSize),
		nestedPageSize: clampPageSize(nestedPageSize),
	}, nil
}

// FetchMergedPullRequests fetches the page of merged pull requests that starts at cursor.
func (f *PullRequestFetcher) FetchMergedPullRequests(ctx context.Context, owner, repo string, cursor paginate.Cursor) (paginate.Page[PullRequest], error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return paginate.Page[PullRequest]{}, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return paginate.Page[PullRequest]{}, fmt.Errorf("repo is required")
	}

	variables := map[string]any{
		"owner":  trimmedOwner,
		"name":   trimmedRepo,
		"first":  f.pageSize,
		"nested": f.nestedPageSize,
		"after":  nil,
	}
	if cursor != "" {
		variables["after"] = string(cursor)
	}

	var payload mergedPullRequestsPayload
	if err := f.do(ctx, fetchMergedPullRequestsOp, mergedPullRequestsQuery, variables, &payload); err != nil {
		return paginate.Page[PullRequest]{}, err
	}
	if payload.Repository == nil {
		return paginate.Page[PullRequest]{}, &TransportError{
			Op:     fetchMergedPullRequestsOp,
			Status: EndpointStatusNotFound,
			Err:    fmt.Errorf("repository %s/%s not found", trimmedOwner, trimmedRepo),
		}
	}

	connection := payload.Repository.PullRequests
	page := paginate.Page[PullRequest]{
		Items:   make([]PullRequest, 0, len(connection.Nodes)),
		HasMore: connection.PageInfo.HasNextPage,
	}
	if connection.PageInfo.EndCursor != nil {
		page.NextCursor = paginate.Cursor(*connection.PageInfo.EndCursor)
	}
	for _, node := range connection.Nodes {
		pr, err := node.toPullRequest()
		if err != nil {
			return paginate.Page[PullRequest]{}, &DecodeError{Op: fetchMergedPullRequestsOp, Err: err}
		}
		page.Items = append(page.Items, pr)
	}
	return page, nil
}

func (f *PullRequestFetcher) do(ctx context.Context, op, query string, variables map[string]any, target any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, _, err := f.requestClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Status: EndpointStatusUnavailable, Err: err}
	}
	if resp == nil {
		return &TransportError{Op: op, Status: EndpointStatusUnavailable, Err: fmt.Errorf("nil response")}
	}
	defer resp.Body.Close()

	status := endpointStatusFromHTTP(resp.StatusCode)
	if status != EndpointStatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &TransportError{
			Op:         op,
			Status:     status,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}

	envelope := graphqlResponse{Data: target}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	if len(envelope.Errors) > 0 {
		return classifyGraphQLErrors(op, envelope.Errors)
	}
	return nil
}

func classifyGraphQLErrors(op string, errs []graphqlError) error {
	messages := make([]string, 0, len(errs))
	status := EndpointStatus("")
	for _, gqlErr := range errs {
		messages = append(messages, gqlErr.Message)
		switch gqlErr.Type {
		case "NOT_FOUND":
			status = EndpointStatusNotFound
		case "RATE_LIMITED":
			status = EndpointStatusRateLimited
		case "FORBIDDEN":
			status = EndpointStatusForbidden
		}
	}
	joined := fmt.Errorf("graphql errors: %s", strings.Join(messages, "; "))
	if status != "" {
		return &TransportError{Op: op, Status: status, Err: joined}
	}
	return &DecodeError{Op: op, Err: joined}
}

func clampPageSize(size int) int {
	if size <= 0 || size > maxGraphQLPageSize {
		return maxGraphQLPageSize
	}
	return size
}

func (n pullRequestNode) toPullRequest() (PullRequest, error) {
	pr := PullRequest{
		Additions:         n.Additions,
		Deletions:         n.Deletions,
		ChangedFiles:      n.ChangedFiles,
		Author:            n.Author.author(),
		Reviews:           make([]Review, 0, len(n.Reviews.Nodes)),
		Comments:          make([]Comment, 0, len(n.Comments.Nodes)),
		ReviewsTruncated:  n.Reviews.PageInfo.HasNextPage,
		CommentsTruncated: n.Comments.PageInfo.HasNextPage,
	}
	if n.MergedAt != nil {
		mergedAt, err := time.Parse(time.RFC3339, *n.MergedAt)
		if err != nil {
			return PullRequest{}, fmt.Errorf("parse mergedAt %q: %w", *n.MergedAt, err)
		}
		pr.MergedAt = mergedAt.UTC()
	}
	for _, review := range n.Reviews.Nodes {
		pr.Reviews = append(pr.Reviews, Review{
			Author: review.Author.author(),
			State:  ReviewState(review.State),
		})
	}
	for _, comment := range n.Comments.Nodes {
		pr.Comments = append(pr.Comments, Comment{Author: comment.Author.author()})
	}
	return pr, nil
}

func (u *userPayload) author() Author {
	if u == nil {
		return UnknownAuthor()
	}
	return KnownAuthor(strings.TrimSpace(u.Login))
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   any            `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type graphqlError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type mergedPullRequestsPayload struct {
	Repository *struct {
		PullRequests struct {
			Nodes    []pullRequestNode `json:"nodes"`
			PageInfo pageInfoPayload   `json:"pageInfo"`
		} `json:"pullRequests"`
	} `json:"repository"`
}

type pageInfoPayload struct {
	EndCursor   *string `json:"endCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type pullRequestNode struct {
	MergedAt     *string      `json:"mergedAt"`
	Additions    uint64       `json:"additions"`
	Deletions    uint64       `json:"deletions"`
	ChangedFiles uint64       `json:"changedFiles"`
	Author       *userPayload `json:"author"`
	Reviews      struct {
		Nodes []struct {
			Author *userPayload `json:"author"`
			State  string       `json:"state"`
		} `json:"nodes"`
		PageInfo pageInfoPayload `json:"pageInfo"`
	} `json:"reviews"`
	Comments struct {
		Nodes []struct {
			Author *userPayload `json:"author"`
		} `json:"nodes"`
		PageInfo pageInfoPayload `json:"pageInfo"`
	} `json:"comments"`
}

type userPayload struct {
	Login string `json:"login"`
}
