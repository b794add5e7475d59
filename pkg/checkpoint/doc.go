// Package checkpoint persists pagination cursors in Redis so a long library
// walk can resume from its last continuation token.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	store := checkpoint.NewStore(redisClient)
//
//	key := checkpoint.Key{
//		Name:   "nightly-backup",
//		Params: url.Values{"albumId": []string{"A1"}},
//	}
//
//	cur, err := store.Load(ctx, key)
//	if errors.Is(err, checkpoint.ErrNotFound) {
//		cur = pagination.NewCursor(pagination.Unbounded)
//	}
//
//	it, _ := client.SearchAll(req, pagination.WithCursor(cur))
//	// ... consume it ...
//	_ = store.Save(ctx, key, it.Cursor(), 24*time.Hour)
//
// A cursor whose Done flag is set is deleted instead of saved.
package checkpoint
