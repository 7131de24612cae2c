// Package pagination implements the cursor pagination contract of the
// Instantly v2 list endpoints.
//
// Instantly returns an opaque next_starting_after cursor with every page that
// has a successor. Cursors are sequential, so pages are fetched strictly one
// after another; there is no page count to fan out over.
//
// Example usage:
//
//	protocol := pagination.NewProtocol(instantlyClient, logger)
//	page, err := protocol.FetchPage(ctx, pagination.OpLeads, pagination.PageRequest{
//		BatchSize: 100,
//		Cursor:    previous.NextCursor,
//	})
//
// The protocol:
//   - Clamps the batch size into [1, MaxBatchSize]
//   - Passes the cursor and filters through untouched
//   - Normalizes a bare array or an object with an items/data field
//   - Degrades unknown payload shapes to an empty, final page
//   - Treats a page without a next cursor as the last page, regardless of size
package pagination
