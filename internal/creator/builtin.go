package creator

import (
	"context"
	"path/filepath"

	"github.com/spf13/cast"

	"github.com/ynput/openpype/internal/attrdef"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/workfile"
)

// DefaultMaxCacheMembers limits how many selected nodes a cache instance
// may hold.
const DefaultMaxCacheMembers = 1000

// DefaultCreators returns the built-in creators.
func DefaultCreators(currentFile string) []Creator {
	return []Creator{
		NewRenderCreator(),
		NewReviewCreator(),
		NewPointcacheCreator(),
		NewWorkfileCreator(currentFile),
	}
}

// RegisterBuiltins adds the built-in creators to cc.
func RegisterBuiltins(cc *CreateContext, currentFile string) error {
	for _, cr := range DefaultCreators(currentFile) {
		if err := cc.AddCreator(cr); err != nil {
			return err
		}
	}
	return nil
}

// RenderCreator creates render layer instances. Each instance owns a render
// setup node and, on request, an IPR helper node.
type RenderCreator struct{ BaseCreator }

func NewRenderCreator() *RenderCreator {
	return &RenderCreator{BaseCreator{
		CreatorIdentifier: "render",
		CreatorFamily:     FamilyRender,
		CreatorLabel:      "Render",
		LegacyFamilies:    []string{"renderlayer", "renderLocal"},
	}}
}

func (c *RenderCreator) InstanceAttrDefs() []attrdef.Def {
	return []attrdef.Def{
		&attrdef.BoolDef{Common: attrdef.Common{Key: "farm", Label: "Submit to farm"}},
		&attrdef.BoolDef{Common: attrdef.Common{Key: "review", Label: "Review"}, Default: true},
		&attrdef.NumberDef{Common: attrdef.Common{Key: "priority", Label: "Farm priority"}, Minimum: 0, Maximum: 100, Default: 50},
	}
}

func (c *RenderCreator) PreCreateAttrDefs() []attrdef.Def {
	return []attrdef.Def{
		&attrdef.TextDef{Common: attrdef.Common{Key: "renderlayer", Label: "Render layer"}, Regex: `^[A-Za-z0-9_]*$`},
		&attrdef.BoolDef{Common: attrdef.Common{Key: "ipr", Label: "Create IPR helper"}},
	}
}

// DynamicSubsetData inserts the render layer into the subset name.
func (c *RenderCreator) DynamicSubsetData(variant, task, asset, project string, data map[string]any) map[string]any {
	if layer := cast.ToString(data["renderlayer"]); layer != "" {
		return map[string]any{"renderlayer": layer}
	}
	return nil
}

func (c *RenderCreator) Create(ctx context.Context, subsetName string, data, preCreateData map[string]any) (*CreatedInstance, error) {
	if err := c.CheckUniqueSubset(subsetName); err != nil {
		return nil, err
	}
	if layer := cast.ToString(preCreateData["renderlayer"]); layer != "" {
		data = merge(data, map[string]any{"layers": []string{layer}})
	}
	inst, err := c.NewInstance(subsetName, data)
	if err != nil {
		return nil, err
	}

	if _, err := c.CreateAuxNode(ctx, inst, subsetName+"_renderSetup", "renderSetupLayer", map[string]any{"subset": subsetName}); err != nil {
		c.cleanupAuxNodes(ctx, inst)
		return nil, err
	}
	if cast.ToBool(preCreateData["ipr"]) {
		if _, err := c.CreateAuxNode(ctx, inst, subsetName+"_ipr", "iprHelper", nil); err != nil {
			c.cleanupAuxNodes(ctx, inst)
			return nil, err
		}
	}
	if err := c.Persist(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// ReviewCreator creates playblast review instances from one selected camera.
type ReviewCreator struct{ BaseCreator }

func NewReviewCreator() *ReviewCreator {
	return &ReviewCreator{BaseCreator{
		CreatorIdentifier: "review",
		CreatorFamily:     FamilyReview,
		CreatorLabel:      "Review",
	}}
}

func (c *ReviewCreator) PreCreateAttrDefs() []attrdef.Def {
	return []attrdef.Def{
		&attrdef.BoolDef{Common: attrdef.Common{Key: "use_selection", Label: "Use selection"}, Default: true},
	}
}

func (c *ReviewCreator) Create(ctx context.Context, subsetName string, data, preCreateData map[string]any) (*CreatedInstance, error) {
	if err := c.CheckUniqueSubset(subsetName); err != nil {
		return nil, err
	}
	if cast.ToBool(preCreateData["use_selection"]) {
		selection, err := c.Selection(ctx)
		if err != nil {
			return nil, err
		}
		if len(selection) != 1 {
			return nil, c.Errorf(errors.ErrInvalidSelection, "select exactly one camera, %d nodes selected", len(selection)).
				WithSubset(subsetName)
		}
		data = merge(data, map[string]any{"source": selection[0]})
	}
	inst, err := c.NewInstance(subsetName, data)
	if err != nil {
		return nil, err
	}
	if err := c.Persist(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// PointcacheCreator creates geometry cache instances from the selection.
// Each instance owns an object set holding its members.
type PointcacheCreator struct {
	BaseCreator
	MaxMembers int
}

func NewPointcacheCreator() *PointcacheCreator {
	return &PointcacheCreator{
		BaseCreator: BaseCreator{
			CreatorIdentifier: "pointcache",
			CreatorFamily:     FamilyPointcache,
			CreatorLabel:      "Point Cache",
			LegacyFamilies:    []string{FamilyAnimation},
		},
		MaxMembers: DefaultMaxCacheMembers,
	}
}

func (c *PointcacheCreator) InstanceAttrDefs() []attrdef.Def {
	return []attrdef.Def{
		&attrdef.BoolDef{Common: attrdef.Common{Key: "farm", Label: "Export on farm"}},
		&attrdef.BoolDef{Common: attrdef.Common{Key: "world_space", Label: "World space"}, Default: true},
	}
}

func (c *PointcacheCreator) PreCreateAttrDefs() []attrdef.Def {
	return []attrdef.Def{
		&attrdef.BoolDef{Common: attrdef.Common{Key: "use_selection", Label: "Use selection"}, Default: true},
	}
}

func (c *PointcacheCreator) Create(ctx context.Context, subsetName string, data, preCreateData map[string]any) (*CreatedInstance, error) {
	if err := c.CheckUniqueSubset(subsetName); err != nil {
		return nil, err
	}

	var members []string
	if cast.ToBool(preCreateData["use_selection"]) {
		selection, err := c.Selection(ctx)
		if err != nil {
			return nil, err
		}
		switch {
		case len(selection) == 0:
			return nil, c.Errorf(errors.ErrInvalidSelection, "nothing is selected").WithSubset(subsetName)
		case c.MaxMembers > 0 && len(selection) > c.MaxMembers:
			return nil, c.Errorf(errors.ErrInvalidSelection, "too many nodes selected: %d, at most %d", len(selection), c.MaxMembers).
				WithSubset(subsetName)
		}
		members = selection
	}

	inst, err := c.NewInstance(subsetName, merge(data, map[string]any{"members": members}))
	if err != nil {
		return nil, err
	}
	if _, err := c.CreateAuxNode(ctx, inst, subsetName+"_SET", "objectSet", map[string]any{"members": stringsToAny(members)}); err != nil {
		c.cleanupAuxNodes(ctx, inst)
		return nil, err
	}
	if err := c.Persist(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// WorkfileCreator keeps the single workfile instance of the session in sync
// with the current file and context.
type WorkfileCreator struct {
	BaseCreator
	CurrentFile string
}

func NewWorkfileCreator(currentFile string) *WorkfileCreator {
	return &WorkfileCreator{
		BaseCreator: BaseCreator{
			CreatorIdentifier: "workfile",
			CreatorFamily:     FamilyWorkfile,
			CreatorLabel:      "Workfile",
		},
		CurrentFile: currentFile,
	}
}

const workfileVariant = "Main"

func (c *WorkfileCreator) Create(ctx context.Context, subsetName string, data, preCreateData map[string]any) (*CreatedInstance, error) {
	if existing := c.Instances(); len(existing) > 0 {
		return nil, c.Errorf(errors.ErrDuplicateSubset, "workfile instance %q already exists", existing[0].SubsetName).
			WithSubset(subsetName)
	}
	inst, err := c.NewInstance(subsetName, merge(data, c.payloadFields()))
	if err != nil {
		return nil, err
	}
	if err := c.Persist(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// AutoCreate creates the workfile instance when missing. An existing one
// is refreshed to the current asset, task and file; the change is written
// by CreateContext.Save.
func (c *WorkfileCreator) AutoCreate(ctx context.Context) error {
	pc := c.Session()
	if pc.Asset == "" || pc.Task == "" {
		c.Logger().Debug("no task context, workfile instance skipped")
		return nil
	}
	subset, err := c.SubsetName(workfileVariant, pc.Task, pc.Asset, pc.Project, nil)
	if err != nil {
		return err
	}

	existing := c.Instances()
	if len(existing) == 0 {
		_, err := c.Context().Create(ctx, c.CreatorIdentifier, workfileVariant, nil, nil)
		return err
	}

	inst := existing[0]
	inst.Asset, inst.Task, inst.SubsetName = pc.Asset, pc.Task, subset
	if c.CurrentFile == "" {
		// Unknown file: keep the stored path
		return nil
	}
	payload, err := NewPayload(FamilyWorkfile, c.payloadFields())
	if err != nil {
		return err
	}
	return inst.SetPayload(payload)
}

func (c *WorkfileCreator) payloadFields() map[string]any {
	fields := map[string]any{"path": c.CurrentFile, "version": 0}
	if c.CurrentFile != "" {
		fields["path"] = filepath.Clean(c.CurrentFile)
		if v, ok := workfile.ParseVersion(c.CurrentFile); ok {
			fields["version"] = v
		}
	}
	return fields
}
