package creator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacyRecord() map[string]any {
	return map[string]any{
		"id":        "pyblish.avalon.instance",
		"family":    "animation",
		"subset":    "animationMain",
		"subset_id": "7d3b-legacy",
		"asset":     "sh010",
		"farm":      1,
		"review":    false,
	}
}

func TestMigrateLegacy(t *testing.T) {
	data := legacyRecord()

	require.True(t, MigrateLegacy(data))

	assert.Equal(t, "7d3b-legacy", data[KeyInstanceID])
	assert.NotContains(t, data, "subset_id")
	assert.NotContains(t, data, "farm")
	assert.NotContains(t, data, "review")
	assert.Equal(t, "animation", data[KeyCreatorIdentifier])
	assert.Equal(t, []any{}, data["members"])
	assert.Equal(t, true, data[KeyActive])
	assert.Equal(t, map[string]any{"farm": true, "review": false}, data[KeyCreatorAttributes])
	assert.Equal(t, map[string]any{}, data[KeyPublishAttributes])
}

// Migrating twice must leave the payload unchanged the second time.
func TestMigrateLegacy_Idempotent(t *testing.T) {
	records := map[string]map[string]any{
		"legacy":       legacyRecord(),
		"uuid key":     {"family": "render", "uuid": "abc", "use_selection": true},
		"no id at all": {"family": "review", "id": "old.marker"},
		"already migrated": {
			"id": InstanceMarker, "instance_id": "x1", "family": "render", "creator_identifier": "render",
			"members": []any{}, "creator_attributes": map[string]any{}, "publish_attributes": map[string]any{}, "active": false,
		},
	}

	for name, data := range records {
		t.Run(name, func(t *testing.T) {
			MigrateLegacy(data)
			once := deepCopyMap(data)

			assert.False(t, MigrateLegacy(data), "second migration reported changes")
			assert.Equal(t, once, data)
			assert.NotEmpty(t, data[KeyInstanceID])
		})
	}
}

func TestMigrateLegacy_KeepsExplicitCreatorAttributes(t *testing.T) {
	data := map[string]any{
		"family":             "render",
		"farm":               true,
		"creator_attributes": map[string]any{"farm": false},
	}
	MigrateLegacy(data)
	assert.Equal(t, false, data[KeyCreatorAttributes].(map[string]any)["farm"])
}

func TestMigrateLegacy_ResultIsLoadable(t *testing.T) {
	data := legacyRecord()
	MigrateLegacy(data)

	inst, err := FromExisting(data)
	require.NoError(t, err)
	assert.Equal(t, "7d3b-legacy", inst.ID())
	cache, ok := inst.Payload.(*CachePayload)
	require.True(t, ok)
	assert.Empty(t, cache.Members)
	assert.Equal(t, true, inst.CreatorAttributes["farm"])
}
