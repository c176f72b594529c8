// Package sqlite implements storage.Backend on SQLite using the pure-Go
// modernc.org/sqlite driver. The schema is embedded and applied with goose
// when the database is opened.
//
//	store, err := sqlite.Open(ctx, "/var/lib/oauth2/oauth2.db")
//	if err != nil {
//		return err
//	}
//	gateway := storage.NewGateway(store)
//	defer gateway.Close()
package sqlite
