package collect

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"testing"

	"github.com/cam3ron2/github-review-stats/internal/paginate"
)

type fakeRepositoryLister struct {
	pages [][]string
	fail  map[int]error
	orgs  []string
}

func (f *fakeRepositoryLister) ListRepositories(_ context.Context, org string, cursor paginate.Cursor) (paginate.Page[string], error) {
	f.orgs = append(f.orgs, org)
	index := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(string(cursor))
		if err != nil {
			return paginate.Page[string]{}, err
		}
		index = parsed
	}
	if err, ok := f.fail[index]; ok {
		return paginate.Page[string]{}, err
	}
	page := paginate.Page[string]{Items: f.pages[index]}
	if index+1 < len(f.pages) {
		page.HasMore = true
		page.NextCursor = paginate.Cursor(strconv.Itoa(index + 1))
	}
	return page, nil
}

type countingRecorder struct {
	nopRecorder
	pages    int
	failures int
}

func (c *countingRecorder) PageFetched(_ string, err error) {
	c.pages++
	if err != nil {
		c.failures++
	}
}

func TestEnumeratorRepositories(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	testCases := []struct {
		name      string
		org       string
		pages     [][]string
		fail      map[int]error
		want      []string
		wantErr   error
		wantPages int
	}{
		{
			name:      "single_page",
			org:       "acme",
			pages:     [][]string{{"api", "web"}},
			want:      []string{"api", "web"},
			wantPages: 1,
		},
		{
			name:      "multiple_pages_in_order",
			org:       "acme",
			pages:     [][]string{{"api", "web"}, {"cli"}, {"docs"}},
			want:      []string{"api", "web", "cli", "docs"},
			wantPages: 3,
		},
		{
			name:      "duplicates_and_blanks_dropped",
			org:       " acme ",
			pages:     [][]string{{"api", ""}, {"api", "web"}},
			want:      []string{"api", "web"},
			wantPages: 2,
		},
		{
			name:      "later_page_failure_truncates",
			org:       "acme",
			pages:     [][]string{{"api"}, {"web"}, {"cli"}},
			fail:      map[int]error{1: boom},
			want:      []string{"api"},
			wantPages: 2,
		},
		{
			name:      "first_page_failure_is_fatal",
			org:       "acme",
			pages:     [][]string{{"api"}},
			fail:      map[int]error{0: boom},
			wantErr:   boom,
			wantPages: 1,
		},
		{
			name:    "empty_org_rejected",
			org:     " ",
			pages:   [][]string{{"api"}},
			wantErr: errors.New("organization is required"),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			lister := &fakeRepositoryLister{pages: tc.pages, fail: tc.fail}
			recorder := &countingRecorder{}
			got, err := NewEnumerator(lister, nil, recorder).Repositories(context.Background(), tc.org)
			if recorder.pages != tc.wantPages {
				t.Fatalf("Repositories() fetched %d pages, want %d", recorder.pages, tc.wantPages)
			}
			if tc.wantErr != nil {
				if err == nil {
					t.Fatalf("Repositories() expected error")
				}
				if !errors.Is(err, tc.wantErr) && err.Error() != tc.wantErr.Error() {
					t.Fatalf("Repositories() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Repositories() unexpected error: %v", err)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("Repositories() = %v, want %v", got, tc.want)
			}
			for _, org := range lister.orgs {
				if org != "acme" {
					t.Fatalf("lister called with org %q, want acme", org)
				}
			}
		})
	}
}
