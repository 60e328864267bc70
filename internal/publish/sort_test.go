package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynput/openpype/internal/errors"
)

func TestStageForOrder(t *testing.T) {
	tests := []struct {
		order float64
		want  Stage
	}{
		{-1, StageCollect},
		{CollectorOrder, StageCollect},
		{CollectorOrder + 0.49, StageCollect},
		{CollectorOrder + 0.499, StageCollect},
		{ValidatorOrder - 0.1, StageValidate},
		{ValidatorOrder, StageValidate},
		{ValidatorOrder + 0.2, StageValidate},
		{ExtractorOrder, StageExtract},
		{ExtractorOrder + 0.45, StageExtract},
		{IntegratorOrder, StageIntegrate},
		{IntegratorOrder + 10, StageIntegrate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StageForOrder(tt.order), "order %v", tt.order)
	}
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("Validator")
	require.NoError(t, err)
	assert.Equal(t, StageValidate, s)

	_, err = ParseStage("render")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestSort_StagesThenOrderThenName(t *testing.T) {
	plugins := []Plugin{
		instPlugin("Integrate", StageIntegrate, 0, nil),
		instPlugin("ValidateB", StageValidate, 0, nil),
		ctxPlugin("CollectLate", StageCollect, 0.49, nil),
		instPlugin("ValidateA", StageValidate, 0, nil),
		ctxPlugin("CollectEarly", StageCollect, -0.5, nil),
		instPlugin("Extract", StageExtract, 0, nil),
	}

	sorted, err := Sort(plugins, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"CollectEarly", "CollectLate", "ValidateA", "ValidateB", "Extract", "Integrate"}, names(sorted))
}

func TestSort_LegacyOrders(t *testing.T) {
	legacy := func(name string, order float64) Plugin {
		return &contextFunc{BasePlugin: LegacyBase(name, order)}
	}
	plugins := []Plugin{
		legacy("IntegrateAsset", IntegratorOrder),
		legacy("CollectSceneVersion", CollectorOrder+0.499),
		legacy("CollectAnatomy", CollectorOrder+0.1),
		legacy("ValidateVersion", ValidatorOrder),
		legacy("IntegrateVersionUp", IntegratorOrder+0.9),
	}

	sorted, err := Sort(plugins, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"CollectAnatomy", "CollectSceneVersion", "ValidateVersion", "IntegrateAsset", "IntegrateVersionUp"}, names(sorted))
	assert.Equal(t, StageCollect, sorted[1].Stage())
}

// Declared dependencies win over numeric order.
func TestSort_DependenciesOverrideOrder(t *testing.T) {
	provider := ctxPlugin("CollectAnatomy", StageCollect, 0.9, nil)
	provider.ProvidesKeys = []string{"anatomy"}
	consumer := ctxPlugin("CollectPaths", StageCollect, 0.1, nil)
	consumer.RequiresKeys = []string{"anatomy"}
	after := ctxPlugin("CollectFinal", StageCollect, 0, nil)
	after.After = []string{"CollectPaths"}
	free := ctxPlugin("CollectFree", StageCollect, 0.5, nil)

	sorted, err := Sort([]Plugin{after, consumer, free, provider}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"CollectFree", "CollectAnatomy", "CollectPaths", "CollectFinal"}, names(sorted))
}

func TestSort_CrossStageDependenciesAreSatisfied(t *testing.T) {
	collect := ctxPlugin("CollectRange", StageCollect, 0, nil)
	collect.ProvidesKeys = []string{"frameRange"}
	validate := instPlugin("ValidateRange", StageValidate, 0, nil)
	validate.After = []string{"CollectRange"}
	validate.RequiresKeys = []string{"frameRange"}

	sorted, err := Sort([]Plugin{validate, collect}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"CollectRange", "ValidateRange"}, names(sorted))
}

func TestSort_UnknownLabelIgnored(t *testing.T) {
	p := ctxPlugin("CollectA", StageCollect, 0, nil)
	p.After = []string{"DoesNotExist"}

	sorted, err := Sort([]Plugin{p}, nil)
	require.NoError(t, err)
	assert.Len(t, sorted, 1)
}

func TestSort_Cycle(t *testing.T) {
	a := instPlugin("ExtractA", StageExtract, 0, nil)
	a.After = []string{"ExtractB"}
	b := instPlugin("ExtractB", StageExtract, 0, nil)
	b.RequiresKeys = []string{"a"}
	a.ProvidesKeys = []string{"a"}
	c := instPlugin("ExtractC", StageExtract, 0, nil)

	_, err := Sort([]Plugin{a, b, c}, nil)
	require.ErrorIs(t, err, errors.ErrDependencyCycle)
	assert.Contains(t, err.Error(), "ExtractA, ExtractB")
	assert.NotContains(t, err.Error(), "ExtractC")

	_, err = NewRunner([]Plugin{a, b})
	assert.ErrorIs(t, err, errors.ErrDependencyCycle)
}

func TestSort_DuplicateNames(t *testing.T) {
	_, err := Sort([]Plugin{
		ctxPlugin("Collect", StageCollect, 0, nil),
		instPlugin("Collect", StageValidate, 0, nil),
	}, nil)
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
}

// Float noise must not reorder plugins with equal intended orders.
func TestSort_OrderRounding(t *testing.T) {
	x, y := 0.1, 0.2
	a := ctxPlugin("B", StageCollect, x+y, nil)
	b := ctxPlugin("A", StageCollect, 0.3, nil)

	sorted, err := Sort([]Plugin{a, b}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(sorted))
}
