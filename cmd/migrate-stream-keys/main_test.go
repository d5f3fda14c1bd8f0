package main

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/livecast/backend/crypto"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/testutil"
)

type fakeSealer struct {
	streams []store.Stream
	listErr error
	failIDs map[string]bool
	sealed  []string
}

func (f *fakeSealer) ListPlainStreamKeys(context.Context) ([]store.Stream, error) {
	return f.streams, f.listErr
}

func (f *fakeSealer) SealStreamKey(_ context.Context, st *store.Stream) error {
	if f.failIDs[st.ID] {
		return errors.New("concurrent update")
	}
	f.sealed = append(f.sealed, st.ID)
	return nil
}

func TestMigrateStreamKeys_DryRun(t *testing.T) {
	f := &fakeSealer{streams: []store.Stream{{ID: "a"}, {ID: "b"}}}
	sum, err := migrateStreamKeys(context.Background(), f, true)
	require.NoError(t, err)
	assert.Equal(t, summary{Total: 2, Migrated: 2}, sum)
	assert.Empty(t, f.sealed, "dry run must not write")
}

func TestMigrateStreamKeys_PartialFailure(t *testing.T) {
	f := &fakeSealer{
		streams: []store.Stream{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		failIDs: map[string]bool{"b": true},
	}
	sum, err := migrateStreamKeys(context.Background(), f, false)
	require.Error(t, err)
	assert.Equal(t, summary{Total: 3, Migrated: 2, Errors: 1}, sum)
	assert.Equal(t, []string{"a", "c"}, f.sealed)
}

func TestMigrateStreamKeys_Nothing(t *testing.T) {
	sum, err := migrateStreamKeys(context.Background(), &fakeSealer{}, false)
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
}

func TestMigrateStreamKeys_ListError(t *testing.T) {
	_, err := migrateStreamKeys(context.Background(), &fakeSealer{listErr: errors.New("db down")}, false)
	assert.ErrorContains(t, err, "db down")
}

func TestMigrateStreamKeys_Postgres(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()

	plain := store.New(dbx, nil)
	st, err := plain.CreateStream(ctx, store.NewStream{CreatorAddress: testutil.Addr(1), Title: "old", StreamKey: "sk-legacy"})
	require.NoError(t, err)
	require.Equal(t, crypto.VersionPlain, st.StreamKeyVersion)

	keys, err := crypto.NewSealer(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)
	sealed := store.New(dbx, keys)

	sum, err := migrateStreamKeys(ctx, sealed, false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Migrated)

	got, err := sealed.GetStream(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, crypto.VersionAESGCM, got.StreamKeyVersion)
	assert.NotEqual(t, "sk-legacy", got.StreamKey)
	key, err := sealed.OpenStreamKey(got)
	require.NoError(t, err)
	assert.Equal(t, "sk-legacy", key)

	sum, err = migrateStreamKeys(ctx, sealed, false)
	require.NoError(t, err)
	assert.Zero(t, sum.Total, "second run finds nothing")
}
