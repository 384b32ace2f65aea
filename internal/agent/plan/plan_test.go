package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "agent-platform/pkg/errors"
)

func TestParseRenderRoundTrip(t *testing.T) {
	text := `# weekly report plan
- [ ] collect metrics
- [~] draft summary
- [x] book review slot
- [!] send to legal
random prose is skipped
`
	p := Parse(text)
	require.Len(t, p.Steps, 4)
	assert.Equal(t, "step-1", p.Steps[0].ID)
	assert.Equal(t, StatusPending, p.Steps[0].Status)
	assert.Equal(t, StatusInProgress, p.Steps[1].Status)
	assert.Equal(t, StatusDone, p.Steps[2].Status)
	assert.Equal(t, StatusFailed, p.Steps[3].Status)
	assert.Equal(t, "collect metrics", p.Steps[0].Description)

	rendered := Render(p)
	again := Parse(rendered)
	assert.Equal(t, p.Steps, again.Steps)
}

func TestUpdateStep(t *testing.T) {
	p := Parse("- [ ] a\n- [ ] b\n")
	require.NoError(t, p.UpdateStep("step-2", StatusDone))
	assert.Equal(t, StatusDone, p.Steps[1].Status)

	err := p.UpdateStep("step-9", StatusDone)
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))

	err = p.UpdateStep("step-1", Status("bogus"))
	assert.True(t, errors.Is(err, xerrors.ErrInvalidArg))
}

func TestFileStoreMissingFileIsEmptyPlan(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "plan.md"))
	require.NoError(t, err)
	p, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.Steps)
}

func TestFileStoreReadsExternalEdits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plan.md")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, Parse("- [ ] a\n")))
	p, err := store.Read(ctx)
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)

	// 外部编辑文件后，下一次 Read 必须看到新内容
	require.NoError(t, os.WriteFile(path, []byte("- [x] a\n- [ ] b\n"), 0644))
	p, err = store.Read(ctx)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, StatusDone, p.Steps[0].Status)
}

func TestMemoryStoreCopyOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Write(ctx, Parse("- [ ] a\n")))

	p, err := store.Read(ctx)
	require.NoError(t, err)
	p.Steps[0].Status = StatusFailed

	again, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Steps[0].Status)
}
