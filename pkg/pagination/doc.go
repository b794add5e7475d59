// Package pagination walks continuation-token paginated Photos Library
// endpoints lazily.
//
// SearchAll returns an Iterator that fetches a page only when the consumer
// asks for an item beyond the current one, follows nextPageToken until it is
// absent, and optionally stops after a fixed number of page fetches:
//
//	it, err := pagination.SearchAll(fetcher, pagination.DecodeJSON[Item](),
//		pagination.WithBudget(10))
//	if err != nil {
//		return err
//	}
//	for item, err := range it.All(ctx) {
//		if err != nil {
//			return err
//		}
//		// use item
//	}
//
// Running out of tokens and running out of budget both end the sequence the
// same way (ErrDone). A failed page fetch is reported by the Next call that
// needed the page, after all items of earlier pages were delivered.
//
// WithPrefetch moves page fetches to a background goroutine that stays at
// most a fixed number of pages ahead of the consumer.
//
// BatchFetcher covers the other fan-out shape of the API: id lists split
// into chunks of at most 50 for mediaItems:batchGet.
package pagination
