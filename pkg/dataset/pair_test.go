package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPairRecords(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	touch := func(p string) string {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		return p
	}
	touch(filepath.Join(root, "b.jpg"))
	touch(filepath.Join(root, "b.json"))
	touch(filepath.Join(root, "a.PNG"))
	touch(filepath.Join(root, "a.json"))
	orphanImage := touch(filepath.Join(root, "c.jpeg"))
	orphanJSON := touch(filepath.Join(root, "d.json"))
	touch(filepath.Join(root, "notes.txt"))
	touch(filepath.Join(sub, "z.jpg"))
	touch(filepath.Join(sub, "z.json"))
	// Same stem in a different directory is a different record
	touch(filepath.Join(sub, "a.jpg"))
	touch(filepath.Join(sub, "a.json"))

	p, err := PairRecords(root)
	require.NoError(t, err)
	require.Equal(t, []Pair{
		{Image: filepath.Join(root, "a.PNG"), Annotation: filepath.Join(root, "a.json")},
		{Image: filepath.Join(root, "b.jpg"), Annotation: filepath.Join(root, "b.json")},
		{Image: filepath.Join(sub, "a.jpg"), Annotation: filepath.Join(sub, "a.json")},
		{Image: filepath.Join(sub, "z.jpg"), Annotation: filepath.Join(sub, "z.json")},
	}, p.Pairs)
	require.ElementsMatch(t, []string{orphanImage, orphanJSON}, p.Unmatched)
	require.Equal(t, "a", p.Pairs[0].Stem())
}

func TestPairRecordsDuplicateStem(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a.jpg", "a.png", "a.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, n), []byte("x"), 0644))
	}
	p, err := PairRecords(root)
	require.NoError(t, err)
	require.Equal(t, []Pair{{Image: filepath.Join(root, "a.jpg"), Annotation: filepath.Join(root, "a.json")}}, p.Pairs)
	require.Equal(t, []string{filepath.Join(root, "a.png")}, p.Unmatched)
}

func TestPairRecordsMissingRoot(t *testing.T) {
	root := t.TempDir()
	_, err := PairRecords(filepath.Join(root, "nope"))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.ErrorIs(t, err, ErrConfiguration)

	fn := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(fn, []byte("x"), 0644))
	_, err = PairRecords(fn)
	require.ErrorIs(t, err, ErrConfiguration)
}
