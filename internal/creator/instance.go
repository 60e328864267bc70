// Package creator implements the creation side of publishing: creators
// that turn a user request into a CreatedInstance, persist it through an
// InstanceStore and rebuild it in later sessions.
//
// A CreatedInstance moves through Unsaved, Persisted, Collected, Updated
// and Removed. Every creator embeds BaseCreator, which owns persistence,
// duplicate subset detection, legacy migration and the cleanup of the
// auxiliary nodes a creator made while creating an instance.
package creator

import (
	"reflect"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/ynput/openpype/internal/errors"
)

// InstanceMarker is the "id" value identifying stored instance payloads.
const InstanceMarker = "pyblish.avalon.instance"

// Keys of the stored instance payload.
const (
	KeyID                = "id"
	KeyInstanceID        = "instance_id"
	KeyFamily            = "family"
	KeySubset            = "subset"
	KeyCreatorIdentifier = "creator_identifier"
	KeyVariant           = "variant"
	KeyAsset             = "asset"
	KeyTask              = "task"
	KeyActive            = "active"
	KeyCreatorAttributes = "creator_attributes"
	KeyPublishAttributes = "publish_attributes"
	KeyFamilyPayload     = "family_payload"
	KeyAuxNodes          = "aux_nodes"
)

var reservedKeys = map[string]struct{}{
	KeyID:                {},
	KeyInstanceID:        {},
	KeyFamily:            {},
	KeySubset:            {},
	KeyCreatorIdentifier: {},
	KeyVariant:           {},
	KeyAsset:             {},
	KeyTask:              {},
	KeyActive:            {},
	KeyCreatorAttributes: {},
	KeyPublishAttributes: {},
	KeyFamilyPayload:     {},
	KeyAuxNodes:          {},
}

// CreatedInstance is one publishable deliverable, e.g. a render layer, a
// workfile or a cache export.
type CreatedInstance struct {
	Family            string
	SubsetName        string
	CreatorIdentifier string
	Variant           string
	Asset             string
	Task              string
	Active            bool

	CreatorAttributes map[string]any
	PublishAttributes map[string]any
	Payload           FamilyPayload

	// Data holds the remaining free-form fields
	Data map[string]any
	// AuxNodes are the ids of nodes created together with the instance.
	// They are deleted when the instance is removed.
	AuxNodes []string

	id       string
	state    State
	snapshot map[string]any
}

// NewCreatedInstance builds an unsaved instance with a fresh id. Known keys
// in data (variant, asset, task, active, creator_attributes,
// publish_attributes) fill the matching fields; payload fields may be given
// flat or under family_payload. The payload is validated.
func NewCreatedInstance(creatorIdentifier, family, subset string, data map[string]any) (*CreatedInstance, error) {
	fields := deepCopyMap(data)
	fields[KeyInstanceID] = uuid.NewString()
	fields[KeyCreatorIdentifier] = creatorIdentifier
	fields[KeyFamily] = family
	fields[KeySubset] = subset
	return build(fields)
}

// FromExisting rebuilds an instance from its stored payload. The id is the
// stored instance_id, so a round trip through DataToStore keeps it.
func FromExisting(stored map[string]any) (*CreatedInstance, error) {
	id := cast.ToString(stored[KeyInstanceID])
	if id == "" {
		return nil, errors.Wrap(errors.ErrInvalidPayload, "stored instance has no instance_id")
	}
	inst, err := build(deepCopyMap(stored))
	if err != nil {
		return nil, errors.Wrapf(err, "instance %s", id)
	}
	inst.state = StateCollected
	inst.snapshot = inst.DataToStore()
	return inst, nil
}

func build(fields map[string]any) (*CreatedInstance, error) {
	inst := &CreatedInstance{
		id:                cast.ToString(fields[KeyInstanceID]),
		Family:            cast.ToString(fields[KeyFamily]),
		SubsetName:        cast.ToString(fields[KeySubset]),
		CreatorIdentifier: cast.ToString(fields[KeyCreatorIdentifier]),
		Variant:           cast.ToString(fields[KeyVariant]),
		Asset:             cast.ToString(fields[KeyAsset]),
		Task:              cast.ToString(fields[KeyTask]),
		Active:            true,
		CreatorAttributes: cast.ToStringMap(fields[KeyCreatorAttributes]),
		PublishAttributes: cast.ToStringMap(fields[KeyPublishAttributes]),
		AuxNodes:          cast.ToStringSlice(fields[KeyAuxNodes]),
		Data:              make(map[string]any),
	}
	if inst.Family == "" {
		return nil, errors.Wrap(errors.ErrInvalidPayload, "instance has no family")
	}
	if v, ok := fields[KeyActive]; ok {
		inst.Active = cast.ToBool(v)
	}

	payloadFields := cast.ToStringMap(fields[KeyFamilyPayload])
	for _, k := range PayloadKeys(inst.Family) {
		if v, ok := fields[k]; ok {
			payloadFields[k] = v
			delete(fields, k)
		}
	}
	payload, err := NewPayload(inst.Family, payloadFields)
	if err != nil {
		return nil, err
	}
	inst.Payload = payload

	for k, v := range fields {
		if _, reserved := reservedKeys[k]; !reserved {
			inst.Data[k] = v
		}
	}
	return inst, nil
}

// ID returns the stable instance id.
func (i *CreatedInstance) ID() string { return i.id }

// State returns the persistence state.
func (i *CreatedInstance) State() State { return i.state }

// Label is the subset name, used in logs and listings.
func (i *CreatedInstance) Label() string { return i.SubsetName }

// Get returns a free-form data value.
func (i *CreatedInstance) Get(key string) (any, bool) {
	v, ok := i.Data[key]
	return v, ok
}

// Set stores a free-form data value. Reserved keys must be set through the
// fields instead.
func (i *CreatedInstance) Set(key string, value any) error {
	if _, reserved := reservedKeys[key]; reserved {
		return errors.Wrapf(errors.ErrInvalidInput, "%q is a reserved instance key", key)
	}
	i.Data[key] = value
	return nil
}

// SetPayload validates and replaces the family payload.
func (i *CreatedInstance) SetPayload(p FamilyPayload) error {
	if p.PayloadFamily() != i.Family {
		return errors.Wrapf(errors.ErrInvalidPayload, "payload family %q does not match %q", p.PayloadFamily(), i.Family)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	i.Payload = p
	return nil
}

// DataToStore returns the full JSON-compatible payload persisted for the
// instance. The result shares no maps with the instance.
func (i *CreatedInstance) DataToStore() map[string]any {
	out := make(map[string]any, len(i.Data)+len(reservedKeys))
	for k, v := range i.Data {
		if _, reserved := reservedKeys[k]; !reserved {
			out[k] = deepCopyValue(v)
		}
	}
	payload := map[string]any{}
	if i.Payload != nil {
		payload = i.Payload.ToMap()
	}

	out[KeyID] = InstanceMarker
	out[KeyInstanceID] = i.id
	out[KeyFamily] = i.Family
	out[KeySubset] = i.SubsetName
	out[KeyCreatorIdentifier] = i.CreatorIdentifier
	out[KeyVariant] = i.Variant
	out[KeyAsset] = i.Asset
	out[KeyTask] = i.Task
	out[KeyActive] = i.Active
	out[KeyCreatorAttributes] = deepCopyMap(i.CreatorAttributes)
	out[KeyPublishAttributes] = deepCopyMap(i.PublishAttributes)
	out[KeyFamilyPayload] = payload
	out[KeyAuxNodes] = stringsToAny(i.AuxNodes)
	return out
}

// Changes returns the sorted top-level keys whose stored value differs from
// the current one. Every key is reported for an unsaved instance.
func (i *CreatedInstance) Changes() []string {
	current := i.DataToStore()
	var changed []string
	for k, v := range current {
		if old, ok := i.snapshot[k]; !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range i.snapshot {
		if _, ok := current[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// HasChanges reports whether the instance differs from its stored payload.
func (i *CreatedInstance) HasChanges() bool {
	return len(i.Changes()) > 0
}

// markStored records that the current data was written to the store.
func (i *CreatedInstance) markStored(state State) {
	i.state = state
	i.snapshot = i.DataToStore()
}

func (i *CreatedInstance) markRemoved() {
	i.state = StateRemoved
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		return stringsToAny(val)
	default:
		return v
	}
}
