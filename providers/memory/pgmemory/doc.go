// Package pgmemory stores chat transcripts in PostgreSQL through pgx/v5, so
// conversations survive restarts and can be shared by several replicas.
//
// [Store] opens one [Thread] per chat id over a shared pool:
//
//	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	store := pgmemory.NewStore(pool)
//	if err := store.EnsureSchema(ctx); err != nil {
//	    return err
//	}
//	history, err := store.Session(chatID).LastMessages(ctx, 31)
package pgmemory
