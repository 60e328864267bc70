package creator

import (
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// legacyFlags are booleans older schema versions stored at the top level.
// They now live in creator_attributes.
var legacyFlags = []string{"farm", "review", "use_selection"}

// legacyIDKeys held the instance id before instance_id existed, newest first.
var legacyIDKeys = []string{"uuid", "subset_id"}

// MigrateLegacy upgrades a stored payload written by an older schema version
// in place and reports whether anything changed. Migrated data is left
// untouched, so running it twice is a no-op.
func MigrateLegacy(data map[string]any) bool {
	changed := false
	set := func(key string, value any) {
		data[key] = value
		changed = true
	}

	if data[KeyID] != InstanceMarker {
		set(KeyID, InstanceMarker)
	}

	if cast.ToString(data[KeyInstanceID]) == "" {
		id := ""
		for _, k := range legacyIDKeys {
			if id = cast.ToString(data[k]); id != "" {
				break
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		set(KeyInstanceID, id)
	}
	for _, k := range legacyIDKeys {
		if _, ok := data[k]; ok {
			delete(data, k)
			changed = true
		}
	}

	if _, ok := data["members"]; !ok {
		set("members", []any{})
	}

	if cast.ToString(data[KeyCreatorIdentifier]) == "" {
		if family := cast.ToString(data[KeyFamily]); family != "" {
			set(KeyCreatorIdentifier, family)
		}
	}

	attrs, isMap := data[KeyCreatorAttributes].(map[string]any)
	if !isMap {
		attrs = cast.ToStringMap(data[KeyCreatorAttributes])
		set(KeyCreatorAttributes, attrs)
	}
	for _, flag := range legacyFlags {
		v, ok := data[flag]
		if !ok {
			continue
		}
		if _, exists := attrs[flag]; !exists {
			attrs[flag] = cast.ToBool(v)
		}
		delete(data, flag)
		changed = true
	}

	if _, isMap := data[KeyPublishAttributes].(map[string]any); !isMap {
		set(KeyPublishAttributes, cast.ToStringMap(data[KeyPublishAttributes]))
	}
	if _, ok := data[KeyActive]; !ok {
		set(KeyActive, true)
	}
	return changed
}

// isLegacy reports whether data was stored before creator identifiers.
func isLegacy(data map[string]any) bool {
	return cast.ToString(data[KeyCreatorIdentifier]) == ""
}
