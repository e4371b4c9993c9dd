package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// ResolvedToken pairs a registration token with the user that owns it.
type ResolvedToken struct {
	UserID string
	Token  string
}

// Resolver maps user ids to their current registration tokens.
type Resolver struct {
	store       dispatch.DirectoryStore
	chunkSize   int
	concurrency int
}

func NewResolver(store dispatch.DirectoryStore, chunkSize, concurrency int) *Resolver {
	if chunkSize <= 0 {
		chunkSize = DefaultOptions().LookupChunkSize
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Resolver{store: store, chunkSize: chunkSize, concurrency: concurrency}
}

// Resolve looks up userIDs in chunks and returns the users holding a token,
// in input order. Users without a token are skipped. Any store error aborts
// the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, userIDs []string) ([]ResolvedToken, error) {
	chunks := chunk(userIDs, r.chunkSize)
	perChunk := make([][]ResolvedToken, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, ids := range chunks {
		g.Go(func() error {
			records, err := r.store.LookupByIDs(gctx, ids)
			if err != nil {
				return fmt.Errorf("directory lookup of chunk %d failed: %w", i, err)
			}
			resolved := make([]ResolvedToken, 0, len(records))
			for _, rec := range records {
				if rec.Token == "" {
					continue
				}
				resolved = append(resolved, ResolvedToken{UserID: rec.ID, Token: rec.Token})
			}
			perChunk[i] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ResolvedToken
	for _, resolved := range perChunk {
		out = append(out, resolved...)
	}
	return out, nil
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
