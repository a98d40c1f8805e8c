package registry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport_Roundtrip(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Commit(ctx, "a.md", "fp-a", []string{"a:0", "a:1"}))
	require.NoError(t, reg.Commit(ctx, "b.md", "fp-b", []string{"b:0"}))

	var buf bytes.Buffer
	require.NoError(t, Export(ctx, reg, &buf))

	// zstd frames start with the magic number 28 B5 2F FD.
	require.GreaterOrEqual(t, buf.Len(), 4)
	assert.Equal(t, []byte{0x28, 0xB5, 0x2F, 0xFD}, buf.Bytes()[:4])

	records, err := ReadExport(&buf)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "a.md", records[0].DocumentID)
	assert.Equal(t, []string{"a:0", "a:1"}, records[0].ChunkIDs)
	assert.Equal(t, "b.md", records[1].DocumentID)
}

func TestExport_EmptyRegistry(t *testing.T) {
	reg := NewMemoryRegistry()

	var buf bytes.Buffer
	require.NoError(t, Export(context.Background(), reg, &buf))

	records, err := ReadExport(&buf)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadExport_Garbage(t *testing.T) {
	_, err := ReadExport(bytes.NewReader([]byte("not a zstd stream")))
	assert.Error(t, err)
}
