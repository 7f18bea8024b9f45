// Package spanner is a client for Cloud Spanner databases over gRPC.
//
// A Client is opened once per database and shared. It keeps a multiplexed
// session and a pool of regular sessions, runs read-only snapshots and
// read-write transactions on them, resumes broken result streams and retries
// aborted transactions.
//
//	db, err := spanner.Open(ctx, "projects/p/instances/i/databases/d")
//	if err != nil {
//		return err
//	}
//	defer db.Close(ctx)
//
//	_, err = db.ReadWriteTransaction(ctx, func(ctx context.Context, t *spanner.ReadWriteTransaction) error {
//		_, err := t.Update(ctx, spanner.NewStatement("UPDATE Singers SET Active = TRUE WHERE TRUE"))
//
//		return err
//	})
package spanner
