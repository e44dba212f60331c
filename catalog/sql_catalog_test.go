package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	apperrors "mangrove/errors"
)

func openSQLCatalog(t *testing.T) *SQLCatalog {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every pooled connection to ":memory:" would open its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	cat := NewSQLCatalog(db, addrDialer())
	require.NoError(t, cat.EnsureSchema(context.Background()))
	return cat
}

func TestSQLCatalogLookup(t *testing.T) {
	ctx := context.Background()
	cat := openSQLCatalog(t)

	require.NoError(t, cat.Register(ctx, "ec2", Endpoint{Region: "eu-west-1", Addr: "eu:443", Order: 1}))
	require.NoError(t, cat.Register(ctx, "ec2", Endpoint{Region: "us-east-1", Addr: "us:443", Order: 0}))

	t.Run("regions in position order", func(t *testing.T) {
		svc, err := cat.Lookup(ctx, "ec2")
		require.NoError(t, err)

		regions, err := svc.Regions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"us-east-1", "eu-west-1"}, regions)
	})

	t.Run("unknown service", func(t *testing.T) {
		_, err := cat.Lookup(ctx, "ec3")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrUnknownService))
	})

	t.Run("dial uses stored address", func(t *testing.T) {
		svc, err := cat.Lookup(ctx, "ec2")
		require.NoError(t, err)

		conn, err := svc.Dial(ctx, "eu-west-1", Credentials{})
		require.NoError(t, err)
		assert.Equal(t, "eu:443", conn.(*addrConn).addr)
	})
}

func TestSQLCatalogRegisterUpserts(t *testing.T) {
	ctx := context.Background()
	cat := openSQLCatalog(t)

	require.NoError(t, cat.Register(ctx, "s3", Endpoint{Region: "us-east-1", Addr: "old:443"}))
	require.NoError(t, cat.Register(ctx, "s3", Endpoint{Region: "us-east-1", Addr: "new:443"}))

	eps, err := cat.Discover(ctx, "s3")
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "new:443", eps[0].Addr)
}

func TestSQLCatalogDeregister(t *testing.T) {
	ctx := context.Background()
	cat := openSQLCatalog(t)

	require.NoError(t, cat.Register(ctx, "sns", Endpoint{Region: "us-east-1", Addr: "us:443"}))
	require.NoError(t, cat.Deregister(ctx, "sns", "us-east-1"))

	_, err := cat.Lookup(ctx, "sns")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownService))
}
