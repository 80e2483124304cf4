package main

import (
	"testing"

	"github.com/cyclopcam/yolotrain/pkg/dataset"
	"github.com/stretchr/testify/require"
)

func TestBuildFlags(t *testing.T) {
	base := dataset.BuildOptions{
		SourceDir:   "/src",
		ClassesFile: "/cfg/classes.txt",
		Ratios:      dataset.Ratios{Train: 8, Val: 1, Test: 1},
		Seed:        42,
		Collision:   dataset.CollisionFail,
	}

	// No flags leaves the config alone
	opts := base
	require.NoError(t, (&buildFlags{Seed: -1}).apply(&opts))
	require.Equal(t, base, opts)

	opts = base
	flags := buildFlags{Classes: "/x/classes.txt", Ratios: "7:2:1", Seed: 0, Output: "/out", Collision: "skip"}
	require.NoError(t, flags.apply(&opts))
	require.Equal(t, dataset.BuildOptions{
		SourceDir:   "/src",
		ClassesFile: "/x/classes.txt",
		Ratios:      dataset.Ratios{Train: 7, Val: 2, Test: 1},
		Seed:        0,
		OutputDir:   "/out",
		Collision:   dataset.CollisionSkip,
	}, opts)

	for _, bad := range []string{"8,1", "a,b,c", "0,0,0", "-1,1,1"} {
		opts = base
		err := (&buildFlags{Seed: -1, Ratios: bad}).apply(&opts)
		require.ErrorIs(t, err, dataset.ErrConfiguration, bad)
		require.Contains(t, err.Error(), "--ratios")
	}

	opts = base
	err := (&buildFlags{Seed: -1, Collision: "merge"}).apply(&opts)
	require.ErrorIs(t, err, dataset.ErrConfiguration)
	require.Contains(t, err.Error(), "--on-collision")
}
