package githubsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickDefaultVersion(t *testing.T) {
	assert.Equal(t, "main", pickDefaultVersion("main"))
	assert.Equal(t, "HEAD", pickDefaultVersion(""))
}

func TestExtractMajorVersion(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{tag: "v2.3.1", want: "v2"},
		{tag: "1.0.0", want: "v1"},
		{tag: "v10.0.0", want: "v10"},
		{tag: "not-a-version", want: ""},
		{tag: "latest", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, extractMajorVersion(tt.tag))
		})
	}
}

func TestGetLatestTagByMajor(t *testing.T) {
	refs := []GitRef{
		{Name: "v1.0.0", SHA: "a"},
		{Name: "v1.2.0", SHA: "b"},
		{Name: "v2.0.0", SHA: "c"},
		{Name: "v2.1.0", SHA: "d"},
		{Name: "not-a-version", SHA: "e"},
	}

	latest := getLatestTagByMajor(refs)
	byMajor := map[string]string{}
	for _, r := range latest {
		byMajor[extractMajorVersion(r.Name)] = r.Name
	}

	assert.Equal(t, "v1.2.0", byMajor["v1"])
	assert.Equal(t, "v2.1.0", byMajor["v2"])
	assert.Len(t, latest, 2)
	assert.Equal(t, "v2", extractMajorVersion(latest[0].Name))
}

func TestPickLatestForSeries(t *testing.T) {
	refs := []GitRef{
		{Name: "v1.0.0"},
		{Name: "v1.5.0"},
		{Name: "v2.0.0"},
	}

	assert.Equal(t, "v1.5.0", PickLatestForSeries(refs, "v1"))
	assert.Equal(t, "v2.0.0", PickLatestForSeries(refs, "v2"))
	assert.Equal(t, "", PickLatestForSeries(refs, "v3"))
}

func TestBuildVersionPlan(t *testing.T) {
	refs := []GitRef{
		{Name: "v1.0.0"},
		{Name: "v2.0.0"},
		{Name: "v3.0.0"},
		{Name: "v4.0.0"},
	}

	plan := BuildVersionPlan("main", refs, nil, 2)
	assert.Equal(t, "main", plan.Default)
	assert.Equal(t, []string{"v4", "v3"}, plan.Series)
}

func TestBuildVersionPlan_KeepsPreviouslySyncedSeries(t *testing.T) {
	refs := []GitRef{
		{Name: "v1.0.0"},
		{Name: "v2.0.0"},
		{Name: "v3.0.0"},
	}

	plan := BuildVersionPlan("main", refs, []string{"v1"}, 1)
	assert.Equal(t, []string{"v3", "v1"}, plan.Series)
}
