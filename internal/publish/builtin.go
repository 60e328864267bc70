package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cast"

	"github.com/ynput/openpype/internal/creator"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/template"
	"github.com/ynput/openpype/internal/workfile"
)

// Data keys exchanged by the built-in plugins.
const (
	KeyInstances    = "instances"
	KeyNextWorkfile = "nextWorkfile"
)

// DefaultPlugins returns the built-in plugin set. currentFile overrides the
// workfile path found on the workfile instance.
func DefaultPlugins(currentFile string, copyRetries int) []Plugin {
	return []Plugin{
		NewCollectContextData(currentFile),
		NewCollectCreatedInstances(),
		NewCollectStagingDir(),
		NewValidateFrameRange(),
		NewValidateUniqueSubsets(),
		NewExtractInstanceData(),
		NewExtractWorkfile(),
		NewIntegrateRepresentations(copyRetries),
		NewIncrementWorkfileVersion(),
		NewCleanupStagingDirs(),
	}
}

// CollectContextData fills the context with the session keys, the current
// workfile and the template data used by later plugins.
type CollectContextData struct {
	BasePlugin
	CurrentFile string
}

func NewCollectContextData(currentFile string) *CollectContextData {
	return &CollectContextData{
		BasePlugin: BasePlugin{
			PluginName:   "CollectContextData",
			PluginStage:  StageCollect,
			PluginOrder:  -0.5,
			ProvidesKeys: []string{KeyProject, KeyAsset, KeyTask, KeyHost, KeyUser, KeyAnatomyData, KeyPublishRoot, KeyCurrentFile},
		},
		CurrentFile: currentFile,
	}
}

func (p *CollectContextData) ProcessContext(ctx context.Context, pctx *Context) error {
	pc := pctx.Session
	if pc == nil {
		return errors.Wrap(errors.ErrInvalidInput, "publish context has no session")
	}
	pctx.Data[KeyProject] = pc.Project
	pctx.Data[KeyAsset] = pc.Asset
	pctx.Data[KeyTask] = pc.Task
	pctx.Data[KeyHost] = pc.Host
	pctx.Data[KeyUser] = pc.User
	pctx.Data[KeyAnatomyData] = pc.TemplateData()
	pctx.Data[KeyPublishRoot] = pc.Config.Paths.PublishRoot

	current := p.CurrentFile
	if current == "" {
		current = pctx.String(KeyCurrentFile)
	}
	if current == "" && pctx.Create != nil {
		for _, inst := range pctx.Create.Instances() {
			if wp, ok := inst.Payload.(*creator.WorkfilePayload); ok && wp.Path != "" {
				current = wp.Path
				break
			}
		}
	}
	if current != "" {
		pctx.Data[KeyCurrentFile] = filepath.Clean(current)
	}
	return nil
}

// CollectCreatedInstances adds one publish instance per CreatedInstance of
// the create context. Payload fields are flattened into the instance data.
type CollectCreatedInstances struct{ BasePlugin }

func NewCollectCreatedInstances() *CollectCreatedInstances {
	return &CollectCreatedInstances{BasePlugin{
		PluginName:   "CollectCreatedInstances",
		PluginStage:  StageCollect,
		ProvidesKeys: []string{KeyInstances},
	}}
}

func (p *CollectCreatedInstances) ProcessContext(ctx context.Context, pctx *Context) error {
	if pctx.Create == nil {
		pctx.Logger().Debug("no create context, nothing to collect")
		return nil
	}
	for _, ci := range pctx.Create.Instances() {
		inst := NewInstance(ci.SubsetName, ci.Family)
		inst.Active = ci.Active
		inst.Created = ci

		data := ci.DataToStore()
		if payload, ok := data[creator.KeyFamilyPayload].(map[string]any); ok {
			for k, v := range payload {
				data[k] = v
			}
		}
		data["label"] = fmt.Sprintf("%s (%s)", ci.SubsetName, ci.Asset)
		inst.Data = data

		if cast.ToBool(ci.CreatorAttributes["farm"]) {
			inst.Families = append(inst.Families, ci.Family+".farm")
		}
		if ci.Family != creator.FamilyReview && cast.ToBool(ci.CreatorAttributes["review"]) {
			inst.Families = append(inst.Families, creator.FamilyReview)
		}
		pctx.AddInstance(inst)
	}
	pctx.Data[KeyInstances] = len(pctx.Instances())
	return nil
}

// CollectStagingDir gives every instance its own staging directory below
// the configured staging root.
type CollectStagingDir struct{ BasePlugin }

func NewCollectStagingDir() *CollectStagingDir {
	return &CollectStagingDir{BasePlugin{
		PluginName:   "CollectStagingDir",
		PluginStage:  StageCollect,
		PluginOrder:  0.4,
		RequiresKeys: []string{KeyInstances},
		ProvidesKeys: []string{KeyStagingDir},
	}}
}

func (p *CollectStagingDir) ProcessInstance(ctx context.Context, inst *Instance) error {
	pctx := inst.Context()
	root := ""
	if pctx.Session != nil {
		root = pctx.Session.Config.Paths.StagingRoot
	}
	if root == "" {
		root = filepath.Join(os.TempDir(), "openpype-staging")
	}
	dir := filepath.Join(root, pctx.RunID, inst.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	inst.Data[KeyStagingDir] = dir
	return nil
}

// ValidateFrameRange checks the instance frame range and, when the context
// carries an asset range (frameStart/frameEnd), that both agree.
type ValidateFrameRange struct{ BasePlugin }

func NewValidateFrameRange() *ValidateFrameRange {
	return &ValidateFrameRange{BasePlugin{
		PluginName:   "ValidateFrameRange",
		PluginStage:  StageValidate,
		FamilyFilter: []string{creator.FamilyRender, creator.FamilyReview, creator.FamilyPointcache, creator.FamilyAnimation},
	}}
}

func (p *ValidateFrameRange) ProcessInstance(ctx context.Context, inst *Instance) error {
	start := cast.ToInt(inst.Data["frameStart"])
	end := cast.ToInt(inst.Data["frameEnd"])
	if start > end {
		return fmt.Errorf("frame start %d is after frame end %d", start, end)
	}
	if cast.ToInt(inst.Data["handleStart"]) < 0 || cast.ToInt(inst.Data["handleEnd"]) < 0 {
		return fmt.Errorf("negative handles %v/%v", inst.Data["handleStart"], inst.Data["handleEnd"])
	}

	data := inst.Context().Data
	assetStart, hasStart := data["frameStart"]
	assetEnd, hasEnd := data["frameEnd"]
	if hasStart && hasEnd && (cast.ToInt(assetStart) != start || cast.ToInt(assetEnd) != end) {
		return fmt.Errorf("frame range %d-%d does not match asset range %d-%d",
			start, end, cast.ToInt(assetStart), cast.ToInt(assetEnd))
	}
	return nil
}

// ValidateUniqueSubsets fails instances publishing the same subset of the
// same asset as another active instance.
type ValidateUniqueSubsets struct{ BasePlugin }

func NewValidateUniqueSubsets() *ValidateUniqueSubsets {
	return &ValidateUniqueSubsets{BasePlugin{
		PluginName:  "ValidateUniqueSubsets",
		PluginStage: StageValidate,
		PluginOrder: -0.1,
	}}
}

func (p *ValidateUniqueSubsets) ProcessInstance(ctx context.Context, inst *Instance) error {
	asset := cast.ToString(inst.Data[KeyAsset])
	count := 0
	for _, other := range inst.Context().Instances() {
		if other.Active && other.Name == inst.Name && cast.ToString(other.Data[KeyAsset]) == asset {
			count++
		}
	}
	if count > 1 {
		return fmt.Errorf("subset %q of asset %q is published by %d instances", inst.Name, asset, count)
	}
	return nil
}

// ExtractInstanceData writes the instance data as a JSON representation
// into the staging directory.
type ExtractInstanceData struct{ BasePlugin }

func NewExtractInstanceData() *ExtractInstanceData {
	return &ExtractInstanceData{BasePlugin{
		PluginName:   "ExtractInstanceData",
		PluginStage:  StageExtract,
		RequiresKeys: []string{KeyStagingDir},
	}}
}

func (p *ExtractInstanceData) ProcessInstance(ctx context.Context, inst *Instance) error {
	dir := cast.ToString(inst.Data[KeyStagingDir])
	if dir == "" {
		return errors.Wrapf(errors.ErrInvalidInput, "instance %s has no staging directory", inst.Name)
	}

	data := make(map[string]any, len(inst.Data))
	for k, v := range inst.Data {
		if k != KeyStagingDir {
			data[k] = v
		}
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode instance data: %w", err)
	}

	name := inst.Name + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	inst.AddRepresentation(&Representation{
		Name:       "metadata",
		Ext:        "json",
		StagingDir: dir,
		Files:      []string{name},
	})
	return nil
}

// ExtractWorkfile publishes the current workfile as is.
type ExtractWorkfile struct{ BasePlugin }

func NewExtractWorkfile() *ExtractWorkfile {
	return &ExtractWorkfile{BasePlugin{
		PluginName:   "ExtractWorkfile",
		PluginStage:  StageExtract,
		FamilyFilter: []string{creator.FamilyWorkfile},
		RequiresKeys: []string{KeyCurrentFile},
	}}
}

func (p *ExtractWorkfile) ProcessInstance(ctx context.Context, inst *Instance) error {
	path := cast.ToString(inst.Data["path"])
	if path == "" {
		path = inst.Context().String(KeyCurrentFile)
	}
	if path == "" {
		return errors.Wrap(errors.ErrInvalidInput, "workfile instance has no path and no current file is set")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("workfile not found: %w", err)
	}
	inst.AddRepresentation(&Representation{
		Name:       strings.TrimPrefix(filepath.Ext(path), "."),
		Ext:        strings.TrimPrefix(filepath.Ext(path), "."),
		StagingDir: filepath.Dir(path),
		Files:      []string{filepath.Base(path)},
	})
	return nil
}

// IntegrateRepresentations copies every representation into the next free
// version directory of the publish path template. Copies are retried with
// exponential backoff.
type IntegrateRepresentations struct {
	BasePlugin
	Retries       int
	RetryInterval time.Duration
	// CopyFile copies one file; it must refuse to overwrite.
	CopyFile func(src, dst string) error
}

func NewIntegrateRepresentations(retries int) *IntegrateRepresentations {
	return &IntegrateRepresentations{
		BasePlugin: BasePlugin{
			PluginName:   "IntegrateRepresentations",
			PluginStage:  StageIntegrate,
			RequiresKeys: []string{KeyAnatomyData},
			ProvidesKeys: []string{KeyPublishDir, KeyVersion},
		},
		Retries:       retries,
		RetryInterval: 100 * time.Millisecond,
		CopyFile:      workfile.Copy,
	}
}

func (p *IntegrateRepresentations) ProcessInstance(ctx context.Context, inst *Instance) error {
	pctx := inst.Context()
	if len(inst.Representations) == 0 {
		pctx.Logger().Debug("nothing to integrate", "instance", inst.Name)
		return nil
	}
	if pctx.Session == nil {
		return errors.Wrap(errors.ErrInvalidInput, "publish context has no session")
	}

	data := template.Data{}
	if anatomy, ok := pctx.Data[KeyAnatomyData].(template.Data); ok {
		for k, v := range anatomy {
			data[k] = v
		}
	}
	data["family"] = inst.Family
	data["subset"] = inst.Name
	if asset := cast.ToString(inst.Data[KeyAsset]); asset != "" {
		data["asset"] = asset
	}

	dir, version, err := nextPublishDir(pctx.Session.Config.Templates.PublishPath, data)
	if err != nil {
		return err
	}

	for _, rep := range inst.Representations {
		for _, name := range rep.Files {
			src := filepath.Join(rep.StagingDir, name)
			dst := filepath.Join(dir, name)
			if err := p.copyWithRetry(ctx, src, dst); err != nil {
				return fmt.Errorf("failed to integrate %s: %w", name, err)
			}
			rep.Published = append(rep.Published, dst)
		}
	}
	inst.Data[KeyPublishDir] = dir
	inst.Data[KeyVersion] = version
	pctx.Logger().Info("instance integrated", "instance", inst.Name, "version", version, "dir", dir)
	return nil
}

func (p *IntegrateRepresentations) copyWithRetry(ctx context.Context, src, dst string) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(p.Retries, 0))), ctx)

	copyFile := p.CopyFile
	if copyFile == nil {
		copyFile = workfile.Copy
	}
	return backoff.Retry(func() error {
		err := copyFile(src, dst)
		if errors.Is(err, errors.ErrAlreadyExists) || errors.Is(err, os.ErrNotExist) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// nextPublishDir formats tmpl with increasing versions until the directory
// does not exist yet.
func nextPublishDir(tmpl string, data template.Data) (string, int, error) {
	t, err := template.New(tmpl)
	if err != nil {
		return "", 0, err
	}
	hasVersion := false
	for _, k := range t.RequiredKeys() {
		if k == KeyVersion {
			hasVersion = true
		}
	}
	if !hasVersion {
		return "", 0, errors.Wrapf(errors.ErrInvalidInput, "publish path template %q has no version key", tmpl)
	}

	for v := 1; ; v++ {
		data[KeyVersion] = v
		dir, err := t.Format(data)
		if err != nil {
			return "", 0, err
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return filepath.Clean(dir), v, nil
		} else if err != nil {
			return "", 0, fmt.Errorf("failed to check %s: %w", dir, err)
		}
	}
}

// IncrementWorkfileVersion saves the current workfile as the next version
// once everything else succeeded. It writes nothing when any earlier plugin
// call failed.
type IncrementWorkfileVersion struct{ BasePlugin }

func NewIncrementWorkfileVersion() *IncrementWorkfileVersion {
	return &IncrementWorkfileVersion{BasePlugin{
		PluginName:   "IncrementWorkfileVersion",
		PluginStage:  StageIntegrate,
		PluginOrder:  0.9,
		After:        []string{"IntegrateRepresentations"},
		RequiresKeys: []string{KeyCurrentFile},
		ProvidesKeys: []string{KeyNextWorkfile},
	}}
}

func (p *IncrementWorkfileVersion) ProcessContext(ctx context.Context, pctx *Context) error {
	if !pctx.Success() {
		pctx.Logger().Warn("publish had failures, workfile version not incremented")
		return nil
	}
	current := pctx.String(KeyCurrentFile)
	if current == "" {
		pctx.Logger().Debug("no current workfile to increment")
		return nil
	}

	next, version, err := workfile.Increment(current)
	if err != nil {
		return err
	}
	if err := workfile.Copy(current, next); err != nil {
		return err
	}
	pctx.Data[KeyNextWorkfile] = next
	pctx.Logger().Info("workfile version incremented", "path", next, "version", version)
	return nil
}

// CleanupStagingDirs removes the staging directories of a successful run.
// Failed runs keep them for inspection. Removal is best effort.
type CleanupStagingDirs struct{ BasePlugin }

func NewCleanupStagingDirs() *CleanupStagingDirs {
	return &CleanupStagingDirs{BasePlugin{
		PluginName:  "CleanupStagingDirs",
		PluginStage: StageIntegrate,
		PluginOrder: 10,
		After:       []string{"IntegrateRepresentations", "IncrementWorkfileVersion"},
	}}
}

func (p *CleanupStagingDirs) ProcessContext(ctx context.Context, pctx *Context) error {
	if !pctx.Success() {
		pctx.Logger().Info("publish had failures, staging directories kept")
		return nil
	}
	parents := make(map[string]struct{})
	for _, inst := range pctx.Instances() {
		dir := cast.ToString(inst.Data[KeyStagingDir])
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			pctx.Logger().Warn("failed to remove staging directory", "dir", dir, "error", err)
			continue
		}
		parents[filepath.Dir(dir)] = struct{}{}
	}
	for dir := range parents {
		// Only succeeds once the run directory is empty
		_ = os.Remove(dir)
	}
	return nil
}
