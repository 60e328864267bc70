package creator

import (
	"context"
	"sort"

	"github.com/ynput/openpype/internal/attrdef"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/event"
	"github.com/ynput/openpype/internal/logging"
	"github.com/ynput/openpype/internal/session"
	"github.com/ynput/openpype/internal/store"
)

// CreateContext holds the registered creators and the instances of the
// current session. It is used from one goroutine.
type CreateContext struct {
	session  *session.ProcessContext
	logger   *logging.Logger
	bus      *event.Bus
	creators map[string]Creator

	instances map[string]*CreatedInstance
	order     []string
}

// NewCreateContext creates an empty context over pc.
func NewCreateContext(pc *session.ProcessContext) *CreateContext {
	return &CreateContext{
		session:   pc,
		logger:    pc.Logger.With("component", "create_context"),
		bus:       pc.Bus,
		creators:  make(map[string]Creator),
		instances: make(map[string]*CreatedInstance),
	}
}

// Session returns the process context.
func (c *CreateContext) Session() *session.ProcessContext { return c.session }

// AddCreator registers cr. Identifiers must be unique.
func (c *CreateContext) AddCreator(cr Creator) error {
	id := cr.Identifier()
	if id == "" || cr.Family() == "" {
		return errors.Wrap(errors.ErrInvalidInput, "creator needs an identifier and a family")
	}
	if _, exists := c.creators[id]; exists {
		return errors.NewAlreadyExistsError("creator", id)
	}
	cr.base().cc = c
	c.creators[id] = cr
	return nil
}

// Creator returns the creator registered as identifier.
func (c *CreateContext) Creator(identifier string) (Creator, bool) {
	cr, ok := c.creators[identifier]
	return cr, ok
}

// Creators returns the registered creators sorted by identifier.
func (c *CreateContext) Creators() []Creator {
	out := make([]Creator, 0, len(c.creators))
	for _, cr := range c.creators {
		out = append(out, cr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier() < out[j].Identifier() })
	return out
}

// Instances returns the instances in the order they were added.
func (c *CreateContext) Instances() []*CreatedInstance {
	out := make([]*CreatedInstance, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.instances[id])
	}
	return out
}

// Instance returns the instance with id.
func (c *CreateContext) Instance(id string) (*CreatedInstance, bool) {
	inst, ok := c.instances[id]
	return inst, ok
}

func (c *CreateContext) register(inst *CreatedInstance) error {
	if _, exists := c.instances[inst.ID()]; exists {
		return errors.NewAlreadyExistsError("instance", inst.ID())
	}
	c.instances[inst.ID()] = inst
	c.order = append(c.order, inst.ID())
	return nil
}

func (c *CreateContext) unregister(id string) {
	delete(c.instances, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Reset drops the in-memory instances, collects them again from every
// creator and then runs the auto creators. A failing creator does not stop
// the others; all failures are returned joined.
func (c *CreateContext) Reset(ctx context.Context) error {
	c.instances = make(map[string]*CreatedInstance)
	c.order = nil

	var errs []error
	for _, cr := range c.Creators() {
		found, err := cr.CollectInstances(ctx)
		if err != nil {
			c.logger.Warn("collecting instances failed", "creator", cr.Identifier(), "error", err)
			errs = append(errs, err)
		}
		for _, inst := range found {
			if err := c.register(inst); err != nil {
				c.logger.Warn("duplicate instance id skipped", "instance_id", inst.ID(), "creator", cr.Identifier())
				errs = append(errs, err)
			}
		}
	}
	if err := c.ResetAutoCreators(ctx); err != nil {
		errs = append(errs, err)
	}

	c.logger.Info("create context reset", "instances", len(c.order), "creators", len(c.creators))
	return errors.Join(errs...)
}

// ResetAutoCreators lets every auto creator create or refresh its instance.
func (c *CreateContext) ResetAutoCreators(ctx context.Context) error {
	var errs []error
	for _, cr := range c.Creators() {
		auto, ok := cr.(AutoCreator)
		if !ok {
			continue
		}
		if err := auto.AutoCreate(ctx); err != nil {
			c.logger.Warn("auto creator failed", "creator", cr.Identifier(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Create resolves the subset name for variant and asks the creator to
// create the instance. Missing asset and task default to the session.
// Creator and pre-create attribute values are defaulted and validated.
func (c *CreateContext) Create(ctx context.Context, identifier, variant string, data, preCreateData map[string]any) (*CreatedInstance, error) {
	cr, ok := c.creators[identifier]
	if !ok {
		return nil, errors.Wrapf(errors.ErrCreatorNotFound, "%q", identifier)
	}

	fields := make(map[string]any, len(data)+3)
	for k, v := range data {
		fields[k] = v
	}
	fields[KeyVariant] = variant
	asset := stringOr(fields[KeyAsset], c.session.Asset)
	task := stringOr(fields[KeyTask], c.session.Task)
	fields[KeyAsset] = asset
	fields[KeyTask] = task

	pre := attrdef.ApplyDefaults(cr.PreCreateAttrDefs(), preCreateData)
	if err := attrdef.ValidateValues(cr.PreCreateAttrDefs(), pre); err != nil {
		return nil, errors.NewCreatorError("invalid pre-create options", errors.Join(errors.ErrInvalidInput, err)).
			WithCreator(identifier)
	}
	attrs, _ := fields[KeyCreatorAttributes].(map[string]any)
	attrs = attrdef.ApplyDefaults(cr.InstanceAttrDefs(), attrs)
	if err := attrdef.ValidateValues(cr.InstanceAttrDefs(), attrs); err != nil {
		return nil, errors.NewCreatorError("invalid creator attributes", errors.Join(errors.ErrInvalidInput, err)).
			WithCreator(identifier)
	}
	fields[KeyCreatorAttributes] = attrs

	dynamic := cr.DynamicSubsetData(variant, task, asset, c.session.Project, merge(fields, pre))
	subset, err := cr.SubsetName(variant, task, asset, c.session.Project, dynamic)
	if err != nil {
		return nil, err
	}

	inst, err := cr.Create(ctx, subset, fields, pre)
	if err != nil {
		if errors.IsUserFacing(err) {
			c.logger.Warn("instance not created", "creator", identifier, "subset", subset, "error", err)
		} else {
			c.logger.Error("creator failed", "creator", identifier, "subset", subset, "error", err)
		}
		return nil, err
	}
	c.bus.Publish(event.NewInstanceChangedEvent(event.TypeInstanceCreated,
		inst.ID(), identifier, inst.Family, inst.SubsetName, nil))
	return inst, nil
}

// Save writes every changed instance back through its creator.
func (c *CreateContext) Save(ctx context.Context) error {
	groups := make(map[string][]UpdateItem)
	for _, inst := range c.Instances() {
		if changes := inst.Changes(); len(changes) > 0 {
			groups[inst.CreatorIdentifier] = append(groups[inst.CreatorIdentifier], UpdateItem{Instance: inst, Changes: changes})
		}
	}

	var errs []error
	for _, identifier := range sortedGroupKeys(groups) {
		items := groups[identifier]
		cr, ok := c.creators[identifier]
		if !ok {
			errs = append(errs, errors.Wrapf(errors.ErrCreatorNotFound, "%q", identifier))
			continue
		}
		if err := cr.UpdateInstances(ctx, items); err != nil {
			errs = append(errs, err)
		}
		for _, item := range items {
			if item.Instance.State() == StateUpdated && !item.Instance.HasChanges() {
				c.bus.Publish(event.NewInstanceChangedEvent(event.TypeInstanceUpdated,
					item.Instance.ID(), identifier, item.Instance.Family, item.Instance.SubsetName, item.Changes))
			}
		}
	}
	return errors.Join(errs...)
}

// Remove removes the instances with ids through their creators. Auxiliary
// nodes a creator failed to delete are deleted here, so removal never
// leaves helper nodes behind.
func (c *CreateContext) Remove(ctx context.Context, ids ...string) error {
	groups := make(map[string][]*CreatedInstance)
	var errs []error
	for _, id := range ids {
		inst, ok := c.instances[id]
		if !ok {
			errs = append(errs, errors.Wrapf(errors.ErrInstanceNotFound, "instance %q", id))
			continue
		}
		groups[inst.CreatorIdentifier] = append(groups[inst.CreatorIdentifier], inst)
	}

	for _, identifier := range sortedGroupKeys(groups) {
		instances := groups[identifier]
		if cr, ok := c.creators[identifier]; ok {
			if err := cr.RemoveInstances(ctx, instances); err != nil {
				errs = append(errs, err)
			}
		}
		for _, inst := range instances {
			if err := c.ensureRemoved(ctx, inst); err != nil {
				errs = append(errs, err)
				continue
			}
			c.unregister(inst.ID())
			c.bus.Publish(event.NewInstanceChangedEvent(event.TypeInstanceRemoved,
				inst.ID(), identifier, inst.Family, inst.SubsetName, nil))
		}
	}
	return errors.Join(errs...)
}

// ensureRemoved deletes whatever the creator left of inst.
func (c *CreateContext) ensureRemoved(ctx context.Context, inst *CreatedInstance) error {
	graph := c.session.Graph
	var leftover []string
	for _, id := range inst.AuxNodes {
		exists, err := graph.HasNode(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			leftover = append(leftover, id)
		}
	}
	if len(leftover) > 0 {
		c.logger.Warn("creator left auxiliary nodes behind, deleting",
			"creator", inst.CreatorIdentifier,
			"subset", inst.SubsetName,
			"nodes", leftover,
		)
		if err := deleteNodes(ctx, graph, leftover); err != nil {
			return err
		}
	}

	if err := c.session.Store.Delete(ctx, inst.ID()); err != nil && !errors.Is(err, errors.ErrInstanceNotFound) {
		return errors.Wrapf(err, "failed to delete instance %s", inst.SubsetName)
	}
	inst.markRemoved()
	return nil
}

// deleteNodes deletes ids, ignoring nodes that are already gone.
func deleteNodes(ctx context.Context, graph store.NodeGraph, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := graph.DeleteNode(ctx, id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			errs = append(errs, errors.Wrapf(err, "failed to delete node %q", id))
		}
	}
	return errors.Join(errs...)
}

func sortedGroupKeys[T any](m map[string][]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
