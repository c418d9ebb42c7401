package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Load(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	store := NewRedisStore(db, "")
	ctx := context.Background()

	mock.ExpectHGetAll(DefaultRedisKey).SetVal(map[string]string{})
	reg, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, reg)

	mock.ExpectHGetAll(DefaultRedisKey).SetVal(map[string]string{
		"page1": "/uploads/page1-1.png",
		"other": "/uploads/other.png",
	})
	reg, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Registry{Page1: "/uploads/page1-1.png"}, reg)

	mock.ExpectHGetAll(DefaultRedisKey).SetErr(errors.New("connection refused"))
	reg, err = store.Load(ctx)
	assert.Error(t, err)
	assert.Nil(t, reg)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Save(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	store := NewRedisStore(db, "test-registry")
	ctx := context.Background()

	mock.ExpectTxPipeline()
	mock.ExpectDel("test-registry").SetVal(1)
	mock.ExpectHSet("test-registry",
		"page1", "/uploads/page1-1.png",
		"page3", "/uploads/page3-2.png",
	).SetVal(2)
	mock.ExpectTxPipelineExec()

	err := store.Save(ctx, Registry{
		Page3: "/uploads/page3-2.png",
		Page1: "/uploads/page1-1.png",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_SaveEmpty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	store := NewRedisStore(db, "test-registry")

	mock.ExpectTxPipeline()
	mock.ExpectDel("test-registry").SetVal(0)
	mock.ExpectTxPipelineExec()

	require.NoError(t, store.Save(context.Background(), Registry{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
