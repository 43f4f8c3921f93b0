// Package paginate walks cursor-paginated sequences and merges their pages in fetch order.
package paginate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Cursor is an opaque, server-issued continuation token. The empty cursor is the start of a sequence.
type Cursor string

// Page is one remote response: ordered items plus the continuation state.
type Page[T any] struct {
	Items      []T
	NextCursor Cursor
	HasMore    bool
}

// Last returns the final item of the page.
func (p Page[T]) Last() (T, bool) {
	var zero T
	if len(p.Items) == 0 {
		return zero, false
	}
	return p.Items[len(p.Items)-1], true
}

// FetchFunc fetches the page that starts at cursor.
type FetchFunc[T any] func(ctx context.Context, cursor Cursor) (Page[T], error)

// StopFunc reports whether pagination should end after the given page, even if more data exists.
type StopFunc[T any] func(page Page[T]) bool

// Options configures one pagination walk.
type Options[T any] struct {
	// Name labels log lines, e.g. "org_repositories".
	Name string
	// Stop is the optional early-stop predicate.
	Stop StopFunc[T]
	// StrictFirstPage makes a failure on the first page fatal instead of degrading to an empty result.
	StrictFirstPage bool
	// OnPage is called after every fetch attempt with the page index and the fetch error, if any.
	OnPage func(index int, err error)
	Logger *zap.Logger
}

// Result is the merged output of a walk.
type Result[T any] struct {
	Items []T
	// Cursors lists every cursor consumed, in order, starting with the empty cursor.
	Cursors []Cursor
	Pages   int
	// Degraded holds the page failure that ended the walk early, if any.
	Degraded error
	// EarlyStop is true when the stop predicate ended the walk.
	EarlyStop bool
}

// Complete reports whether the walk reached the end of the sequence or the stop predicate without failures.
func (r Result[T]) Complete() bool {
	return r.Degraded == nil
}

// Collect fetches pages from the empty cursor until the sequence is exhausted or the stop predicate fires.
//
// A failed page is replaced by an empty, exhausted page: the walk ends, already merged items are kept and
// the failure is logged and recorded in Result.Degraded. With StrictFirstPage a first-page failure is
// returned as an error instead. A cancelled context ends the walk with the context error.
func Collect[T any](ctx context.Context, fetch FetchFunc[T], opts Options[T]) (Result[T], error) {
	if fetch == nil {
		return Result[T]{}, fmt.Errorf("paginate: fetch function is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	result := Result[T]{}
	seen := make(map[Cursor]struct{})
	cursor := Cursor("")
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		seen[cursor] = struct{}{}
		result.Cursors = append(result.Cursors, cursor)
		index := result.Pages

		page, err := fetch(ctx, cursor)
		result.Pages++
		if opts.OnPage != nil {
			opts.OnPage(index, err)
		}
		if err != nil {
			if index == 0 && opts.StrictFirstPage {
				return Result[T]{}, fmt.Errorf("%s: first page: %w", nameOrDefault(opts.Name), err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			logger.Warn("page fetch failed, treating as end of sequence",
				zap.String("sequence", nameOrDefault(opts.Name)),
				zap.Int("page", index),
				zap.String("cursor", string(cursor)),
				zap.Int("items_kept", len(result.Items)),
				zap.Error(err),
			)
			result.Degraded = err
			return result, nil
		}

		result.Items = append(result.Items, page.Items...)

		if !page.HasMore {
			return result, nil
		}
		if opts.Stop != nil && opts.Stop(page) {
			result.EarlyStop = true
			return result, nil
		}
		if page.NextCursor == "" {
			logger.Warn("page reported more data without a cursor",
				zap.String("sequence", nameOrDefault(opts.Name)),
				zap.Int("page", index),
			)
			return result, nil
		}
		if _, repeated := seen[page.NextCursor]; repeated {
			logger.Warn("page repeated an already consumed cursor",
				zap.String("sequence", nameOrDefault(opts.Name)),
				zap.Int("page", index),
				zap.String("cursor", string(page.NextCursor)),
			)
			return result, nil
		}
		cursor = page.NextCursor
	}
}

func nameOrDefault(name string) string {
	if name == "" {
		return "pagination"
	}
	return name
}
