package creator

import (
	"context"
	"fmt"

	"github.com/ynput/openpype/internal/attrdef"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/logging"
	"github.com/ynput/openpype/internal/session"
	"github.com/ynput/openpype/internal/store"
	"github.com/ynput/openpype/internal/template"
)

// UpdateItem pairs an instance with the keys that changed since it was
// last stored.
type UpdateItem struct {
	Instance *CreatedInstance
	Changes  []string
}

// Creator is a per-family factory and repository of instances. Instances
// live in the InstanceStore; a creator re-derives them each session.
//
// Implementations embed BaseCreator and provide Create.
type Creator interface {
	// Identifier is unique among the creators of one CreateContext.
	Identifier() string
	Family() string
	Label() string

	// Create validates preconditions, persists a new instance and registers
	// it with the context. User-correctable failures are *errors.CreatorError.
	Create(ctx context.Context, subsetName string, data, preCreateData map[string]any) (*CreatedInstance, error)
	// CollectInstances rebuilds this creator's instances from the store,
	// migrating legacy payloads.
	CollectInstances(ctx context.Context) ([]*CreatedInstance, error)
	// UpdateInstances writes the full payload of each instance back.
	UpdateInstances(ctx context.Context, items []UpdateItem) error
	// RemoveInstances deletes stored payloads and auxiliary nodes.
	RemoveInstances(ctx context.Context, instances []*CreatedInstance) error

	InstanceAttrDefs() []attrdef.Def
	PreCreateAttrDefs() []attrdef.Def

	// DynamicSubsetData returns extra template keys for the subset name.
	DynamicSubsetData(variant, task, asset, project string, data map[string]any) map[string]any
	// SubsetName resolves the subset name template. Missing keys fail.
	SubsetName(variant, task, asset, project string, dynamic map[string]any) (string, error)

	base() *BaseCreator
}

// AutoCreator keeps exactly one instance that the context creates or
// refreshes on reset, without a user request.
type AutoCreator interface {
	Creator
	AutoCreate(ctx context.Context) error
}

// BaseCreator implements everything except Create.
type BaseCreator struct {
	CreatorIdentifier string
	CreatorFamily     string
	CreatorLabel      string
	// LegacyFamilies are matched when collecting payloads stored without a
	// creator identifier. The creator family always matches.
	LegacyFamilies []string

	cc *CreateContext
}

func (b *BaseCreator) base() *BaseCreator { return b }

func (b *BaseCreator) Identifier() string { return b.CreatorIdentifier }
func (b *BaseCreator) Family() string     { return b.CreatorFamily }

func (b *BaseCreator) Label() string {
	if b.CreatorLabel != "" {
		return b.CreatorLabel
	}
	return b.CreatorIdentifier
}

func (b *BaseCreator) InstanceAttrDefs() []attrdef.Def  { return nil }
func (b *BaseCreator) PreCreateAttrDefs() []attrdef.Def { return nil }

func (b *BaseCreator) DynamicSubsetData(variant, task, asset, project string, data map[string]any) map[string]any {
	return nil
}

// SubsetName formats the family's subset template with family, variant,
// task, asset, project and the dynamic data.
func (b *BaseCreator) SubsetName(variant, task, asset, project string, dynamic map[string]any) (string, error) {
	data := template.Data{
		"family":  b.CreatorFamily,
		"variant": variant,
		"task":    task,
		"asset":   asset,
		"project": project,
	}
	for k, v := range dynamic {
		data[k] = v
	}
	tmpl := b.Session().Config.Templates.SubsetTemplate(b.CreatorFamily)
	name, err := template.Format(tmpl, data)
	if err != nil {
		b.Logger().Error("subset name template could not be resolved",
			"template", tmpl,
			"error", err,
		)
		return "", err
	}
	return name, nil
}

// Context returns the CreateContext the creator is registered with.
func (b *BaseCreator) Context() *CreateContext { return b.cc }

// Session returns the process context of the CreateContext.
func (b *BaseCreator) Session() *session.ProcessContext { return b.cc.session }

// Logger returns the creator's logger.
func (b *BaseCreator) Logger() *logging.Logger {
	return b.cc.logger.With("creator", b.CreatorIdentifier)
}

// Instances returns the context instances created by this creator.
func (b *BaseCreator) Instances() []*CreatedInstance {
	var out []*CreatedInstance
	for _, inst := range b.cc.Instances() {
		if inst.CreatorIdentifier == b.CreatorIdentifier {
			out = append(out, inst)
		}
	}
	return out
}

// Errorf builds a CreatorError for this creator.
func (b *BaseCreator) Errorf(cause error, format string, args ...any) *errors.CreatorError {
	return errors.NewCreatorError(fmt.Sprintf(format, args...), cause).WithCreator(b.CreatorIdentifier)
}

// CheckUniqueSubset fails when a sibling instance already uses subset.
func (b *BaseCreator) CheckUniqueSubset(subset string) error {
	for _, inst := range b.Instances() {
		if inst.SubsetName == subset {
			err := b.Errorf(errors.ErrDuplicateSubset, "subset %q already exists", subset).WithSubset(subset)
			b.Logger().Warn("subset already exists", "subset", subset, "instance_id", inst.ID())
			return err
		}
	}
	return nil
}

// NewInstance builds an unsaved instance of this creator. Asset and task
// default to the session context.
func (b *BaseCreator) NewInstance(subset string, data map[string]any) (*CreatedInstance, error) {
	fields := make(map[string]any, len(data)+2)
	fields[KeyAsset] = b.Session().Asset
	fields[KeyTask] = b.Session().Task
	for k, v := range data {
		fields[k] = v
	}
	inst, err := NewCreatedInstance(b.CreatorIdentifier, b.CreatorFamily, subset, fields)
	if err != nil {
		return nil, b.Errorf(err, "invalid instance data").WithSubset(subset)
	}
	return inst, nil
}

// Selection returns the node ids selected in the scene.
func (b *BaseCreator) Selection(ctx context.Context) ([]string, error) {
	return b.Session().Graph.Selection(ctx)
}

// CreateAuxNode creates a helper node owned by inst. The node is deleted
// when inst is removed or when persisting inst fails.
func (b *BaseCreator) CreateAuxNode(ctx context.Context, inst *CreatedInstance, name, nodeType string, attrs map[string]any) (string, error) {
	id, err := b.Session().Graph.CreateNode(ctx, name, nodeType, attrs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s node %q", nodeType, name)
	}
	inst.AuxNodes = append(inst.AuxNodes, id)
	return id, nil
}

// Persist writes a new instance to the store and registers it with the
// context. On failure the instance's auxiliary nodes are deleted.
func (b *BaseCreator) Persist(ctx context.Context, inst *CreatedInstance) error {
	if err := b.Session().Store.Write(ctx, inst.ID(), inst.DataToStore()); err != nil {
		b.cleanupAuxNodes(ctx, inst)
		return errors.Wrapf(err, "failed to persist instance %s", inst.SubsetName)
	}
	inst.markStored(StatePersisted)
	if err := b.cc.register(inst); err != nil {
		_ = b.Session().Store.Delete(ctx, inst.ID())
		b.cleanupAuxNodes(ctx, inst)
		return err
	}
	b.Logger().Info("instance created",
		"subset", inst.SubsetName,
		"instance_id", inst.ID(),
		"aux_nodes", len(inst.AuxNodes),
	)
	return nil
}

// Matches reports whether a stored payload belongs to this creator.
func (b *BaseCreator) Matches(data map[string]any) bool {
	if data[KeyID] != InstanceMarker && data[KeyID] != nil {
		return false
	}
	if !isLegacy(data) {
		return data[KeyCreatorIdentifier] == b.CreatorIdentifier
	}
	family, _ := data[KeyFamily].(string)
	if family == b.CreatorFamily {
		return true
	}
	return contains(b.LegacyFamilies, family)
}

// storeMigrated writes a migrated payload back so that its store key equals
// its instance_id. A payload whose legacy id is unusable as a key, or is
// taken by another record, keeps its current key as instance_id instead.
func (b *BaseCreator) storeMigrated(ctx context.Context, rec store.Record, keys map[string]bool) error {
	st := b.Session().Store
	id, _ := rec.Data[KeyInstanceID].(string)
	if id == rec.ID {
		return errors.Wrapf(st.Write(ctx, rec.ID, rec.Data), "failed to write migrated instance %s", rec.ID)
	}
	if store.ValidateID(id) != nil || keys[id] {
		rec.Data[KeyInstanceID] = rec.ID
		return errors.Wrapf(st.Write(ctx, rec.ID, rec.Data), "failed to write migrated instance %s", rec.ID)
	}

	if err := st.Write(ctx, id, rec.Data); err != nil {
		return errors.Wrapf(err, "failed to write migrated instance %s", id)
	}
	if err := st.Delete(ctx, rec.ID); err != nil && !errors.Is(err, errors.ErrInstanceNotFound) {
		_ = st.Delete(ctx, id)
		return errors.Wrapf(err, "failed to remove legacy record %s", rec.ID)
	}
	keys[id] = true
	delete(keys, rec.ID)
	return nil
}

// CollectInstances reads every matching payload from the store. Legacy
// payloads are migrated and written back once, under their instance_id.
func (b *BaseCreator) CollectInstances(ctx context.Context) ([]*CreatedInstance, error) {
	records, err := b.Session().Store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stored instances")
	}

	keys := make(map[string]bool, len(records))
	for _, rec := range records {
		keys[rec.ID] = true
	}

	var (
		instances []*CreatedInstance
		errs      []error
	)
	for _, rec := range records {
		if !b.Matches(rec.Data) {
			continue
		}
		legacy := isLegacy(rec.Data)
		migrated := MigrateLegacy(rec.Data)
		if migrated && legacy {
			rec.Data[KeyCreatorIdentifier] = b.CreatorIdentifier
		}
		if migrated || rec.Data[KeyInstanceID] != rec.ID {
			if err := b.storeMigrated(ctx, rec, keys); err != nil {
				errs = append(errs, err)
				continue
			}
			b.Logger().Info("stored instance migrated", "record", rec.ID, "instance_id", rec.Data[KeyInstanceID])
		}
		inst, err := FromExisting(rec.Data)
		if err != nil {
			b.Logger().Warn("stored instance skipped", "record", rec.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		instances = append(instances, inst)
	}
	return instances, errors.Join(errs...)
}

// UpdateInstances overwrites the stored payload of each instance.
func (b *BaseCreator) UpdateInstances(ctx context.Context, items []UpdateItem) error {
	var errs []error
	for _, item := range items {
		inst := item.Instance
		if err := b.Session().Store.Write(ctx, inst.ID(), inst.DataToStore()); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to update instance %s", inst.SubsetName))
			continue
		}
		inst.markStored(StateUpdated)
		b.Logger().Debug("instance updated", "subset", inst.SubsetName, "changes", item.Changes)
	}
	return errors.Join(errs...)
}

// RemoveInstances deletes the auxiliary nodes and the stored payload of
// each instance.
func (b *BaseCreator) RemoveInstances(ctx context.Context, instances []*CreatedInstance) error {
	var errs []error
	for _, inst := range instances {
		if err := b.deleteAuxNodes(ctx, inst); err != nil {
			errs = append(errs, err)
		}
		if err := b.Session().Store.Delete(ctx, inst.ID()); err != nil && !errors.Is(err, errors.ErrInstanceNotFound) {
			errs = append(errs, errors.Wrapf(err, "failed to delete instance %s", inst.SubsetName))
			continue
		}
		inst.markRemoved()
	}
	return errors.Join(errs...)
}

func (b *BaseCreator) deleteAuxNodes(ctx context.Context, inst *CreatedInstance) error {
	return deleteNodes(ctx, b.Session().Graph, inst.AuxNodes)
}

// cleanupAuxNodes deletes the auxiliary nodes of an instance that was never
// stored. Nodes it cannot delete are logged.
func (b *BaseCreator) cleanupAuxNodes(ctx context.Context, inst *CreatedInstance) {
	if err := b.deleteAuxNodes(ctx, inst); err != nil {
		b.Logger().Warn("failed to delete auxiliary nodes",
			"subset", inst.SubsetName,
			"nodes", inst.AuxNodes,
			"error", err,
		)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
