package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptions_WithDoesNotMutate(t *testing.T) {
	base := Options{{Name: "downscale", Value: "2"}, {Name: "verboseLevel", Value: "debug"}}

	changed := base.With("downscale", "16")
	added := base.With("extra", "1")

	assert.Equal(t, "2", base[0].Value)
	assert.Len(t, base, 2)
	v, _ := changed.Get("downscale")
	assert.Equal(t, "16", v)
	assert.Equal(t, "extra", added[2].Name)
}

func TestOptions_ArgsSkipsGroupSize(t *testing.T) {
	opts := Options{
		{Name: "downscale", Value: "2"},
		{Name: GroupSizeOption, Value: "3"},
		{Name: "verboseLevel", Value: "debug"},
	}

	assert.Equal(t, []string{"--downscale", "2", "--verboseLevel", "debug"}, opts.Args())
}

func TestParameterSet_Isolation(t *testing.T) {
	src := map[StageID]Options{StageDepthMap: {{Name: "downscale", Value: "2"}}}
	set := NewParameterSet(QualityMedium, DatasetSmall, src)

	src[StageDepthMap][0].Value = "99"
	got := set.Stage(StageDepthMap)
	assert.Equal(t, "2", got[0].Value)

	got[0].Value = "42"
	again, _ := set.Stage(StageDepthMap).Get("downscale")
	assert.Equal(t, "2", again)

	next := set.WithOption(StageDepthMap, "downscale", "4")
	v, _ := next.Stage(StageDepthMap).Get("downscale")
	assert.Equal(t, "4", v)
	orig, _ := set.Stage(StageDepthMap).Get("downscale")
	assert.Equal(t, "2", orig)
}
