package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]string

func (f fakeResolver) Resolve(_ context.Context, symbol string) (string, bool) {
	id, ok := f[symbol]
	return id, ok
}

func TestReadKeys(t *testing.T) {
	dir := t.TempDir()

	obj := filepath.Join(dir, "obj.json")
	require.NoError(t, os.WriteFile(obj, []byte(`{"eth":1,"BTC":2}`), 0o644))
	got, err := readKeys(obj)
	require.NoError(t, err)
	require.Equal(t, []string{"BTC", "ETH"}, got)

	lines := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(lines, []byte("sol\n\nbtc\nSOL\n"), 0o644))
	got, err = readKeys(lines)
	require.NoError(t, err)
	require.Equal(t, []string{"BTC", "SOL"}, got)

	_, err = readKeys(filepath.Join(dir, "absent"))
	require.Error(t, err)
}

func TestResolveAll(t *testing.T) {
	d := resolveAll(t.Context(), fakeResolver{"BTC": "bitcoin"}, []string{"BTC", "NOPE"})
	require.Equal(t, 1, d.Count)
	require.Equal(t, []entry{{Symbol: "BTC", ID: "bitcoin"}}, d.Entries)
	require.Equal(t, []string{"NOPE"}, d.Missing)
}

func TestFromSnapshot(t *testing.T) {
	d := fromSnapshot(map[string]string{"eth": "ethereum", "btc": "bitcoin"})
	require.Equal(t, 2, d.Count)
	require.Equal(t, "BTC", d.Entries[0].Symbol)
	require.Equal(t, "ETH", d.Entries[1].Symbol)
}
