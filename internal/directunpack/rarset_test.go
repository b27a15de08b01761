package directunpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonzbd/internal/domain"
)

func TestBuildRarSetsGroupsLegacyVolumes(t *testing.T) {
	files := []*domain.File{
		{Name: "Release.rar"},
		{Name: "Release.r00"},
		{Name: "Release.r01"},
		{Name: "Release.nfo"},
		{Name: "Release.par2"},
	}

	sets := buildRarSets(files)
	require.Len(t, sets, 1)
	s, ok := sets["Release"]
	require.True(t, ok)
	assert.Len(t, s.files, 3)
}

func TestBuildRarSetsGroupsPartVolumes(t *testing.T) {
	files := []*domain.File{
		{Name: "Show.S01E01.part01.rar"},
		{Name: "Show.S01E01.part02.rar"},
		{Name: "Show.S01E01.part03.rar"},
	}

	sets := buildRarSets(files)
	require.Len(t, sets, 1)
	for _, s := range sets {
		assert.Len(t, s.files, 3)
	}
}

func TestRarSetAllCompletedRequiresEveryVolume(t *testing.T) {
	a := &domain.File{Name: "x.rar", Completed: true}
	b := &domain.File{Name: "x.r00", Completed: false}
	s := &rarSet{key: "x", files: []*domain.File{a, b}}

	assert.False(t, s.allCompleted())
	b.Completed = true
	assert.True(t, s.allCompleted())
}

func TestRarSetMainVolumePrefersPlainRarOverParts(t *testing.T) {
	a := &domain.File{Name: "Release.part02.rar"}
	b := &domain.File{Name: "Release.rar"}
	s := &rarSet{key: "Release", files: []*domain.File{a, b}}

	assert.Equal(t, "Release.rar", s.mainVolume().Name)
}

func TestRarSetMainVolumeFallsBackToLowestNumberedVolume(t *testing.T) {
	a := &domain.File{Name: "Release.r01"}
	b := &domain.File{Name: "Release.r00"}
	s := &rarSet{key: "Release", files: []*domain.File{a, b}}

	assert.Equal(t, "Release.r00", s.mainVolume().Name)
}
