package creator

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/ynput/openpype/internal/errors"
)

// Families with a typed payload.
const (
	FamilyRender     = "render"
	FamilyWorkfile   = "workfile"
	FamilyReview     = "review"
	FamilyPointcache = "pointcache"
	FamilyAnimation  = "animation"
)

// FamilyPayload is the family-specific part of an instance. Payloads are
// validated when the instance is constructed.
type FamilyPayload interface {
	// PayloadFamily returns the family the payload describes.
	PayloadFamily() string
	Validate() error
	// ToMap returns the JSON-compatible stored form.
	ToMap() map[string]any
}

// FrameRange is shared by payloads covering a range of frames.
type FrameRange struct {
	FrameStart  int `mapstructure:"frameStart"`
	FrameEnd    int `mapstructure:"frameEnd"`
	HandleStart int `mapstructure:"handleStart"`
	HandleEnd   int `mapstructure:"handleEnd"`
}

func (r FrameRange) validate(family string) error {
	if r.FrameStart > r.FrameEnd {
		return payloadError(family, "frameStart", fmt.Sprintf("frame start %d is after frame end %d", r.FrameStart, r.FrameEnd))
	}
	if r.HandleStart < 0 || r.HandleEnd < 0 {
		return payloadError(family, "handleStart", "handles must not be negative")
	}
	return nil
}

func (r FrameRange) toMap(m map[string]any) {
	m["frameStart"] = r.FrameStart
	m["frameEnd"] = r.FrameEnd
	m["handleStart"] = r.HandleStart
	m["handleEnd"] = r.HandleEnd
}

// RenderPayload describes a render layer. Farm and review switches are
// creator attributes, not payload fields.
type RenderPayload struct {
	FrameRange `mapstructure:",squash"`

	Renderer string   `mapstructure:"renderer"`
	Layers   []string `mapstructure:"layers"`
}

func (p *RenderPayload) PayloadFamily() string { return FamilyRender }
func (p *RenderPayload) Validate() error       { return p.FrameRange.validate(FamilyRender) }

func (p *RenderPayload) ToMap() map[string]any {
	m := map[string]any{
		"renderer": p.Renderer,
		"layers":   stringsToAny(p.Layers),
	}
	p.FrameRange.toMap(m)
	return m
}

// WorkfilePayload describes the workfile instance.
type WorkfilePayload struct {
	Path    string `mapstructure:"path"`
	Version int    `mapstructure:"version"`
}

func (p *WorkfilePayload) PayloadFamily() string { return FamilyWorkfile }

func (p *WorkfilePayload) Validate() error {
	if p.Version < 0 {
		return payloadError(FamilyWorkfile, "version", "version must not be negative")
	}
	return nil
}

func (p *WorkfilePayload) ToMap() map[string]any {
	return map[string]any{"path": p.Path, "version": p.Version}
}

// ReviewPayload describes a review (playblast) instance.
type ReviewPayload struct {
	FrameRange `mapstructure:",squash"`

	// Source is the camera or node the review is made from
	Source string `mapstructure:"source"`
}

func (p *ReviewPayload) PayloadFamily() string { return FamilyReview }
func (p *ReviewPayload) Validate() error       { return p.FrameRange.validate(FamilyReview) }

func (p *ReviewPayload) ToMap() map[string]any {
	m := map[string]any{"source": p.Source}
	p.FrameRange.toMap(m)
	return m
}

// CachePayload describes a geometry cache export.
type CachePayload struct {
	FrameRange `mapstructure:",squash"`

	Step    float64  `mapstructure:"step"`
	Members []string `mapstructure:"members"`

	family string
}

func (p *CachePayload) PayloadFamily() string { return p.family }

func (p *CachePayload) Validate() error {
	if err := p.FrameRange.validate(p.family); err != nil {
		return err
	}
	if p.Step <= 0 {
		return payloadError(p.family, "step", fmt.Sprintf("step must be positive, got %v", p.Step))
	}
	return nil
}

func (p *CachePayload) ToMap() map[string]any {
	m := map[string]any{
		"step":    p.Step,
		"members": stringsToAny(p.Members),
	}
	p.FrameRange.toMap(m)
	return m
}

// GenericPayload keeps the fields of families without a typed payload.
type GenericPayload struct {
	Family string
	Fields map[string]any
}

func (p *GenericPayload) PayloadFamily() string { return p.Family }
func (p *GenericPayload) Validate() error       { return nil }

func (p *GenericPayload) ToMap() map[string]any {
	return deepCopyMap(p.Fields)
}

// NewPayload decodes the payload for family from fields and validates it.
// Numbers may arrive as float64 after a JSON round trip.
func NewPayload(family string, fields map[string]any) (FamilyPayload, error) {
	var p FamilyPayload
	switch family {
	case FamilyRender:
		p = &RenderPayload{}
	case FamilyWorkfile:
		p = &WorkfilePayload{}
	case FamilyReview:
		p = &ReviewPayload{}
	case FamilyPointcache, FamilyAnimation:
		p = &CachePayload{Step: 1, family: family}
	default:
		return &GenericPayload{Family: family, Fields: deepCopyMap(fields)}, nil
	}

	if len(fields) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           p,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(fields); err != nil {
			return nil, errors.Join(errors.ErrInvalidPayload, fmt.Errorf("%s payload: %w", family, err))
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// PayloadKeys returns the field names of the typed payload for family, or
// nil for families without one.
func PayloadKeys(family string) []string {
	p, err := NewPayload(family, nil)
	if err != nil {
		return nil
	}
	if _, generic := p.(*GenericPayload); generic {
		return nil
	}
	keys := make([]string, 0, 8)
	for k := range p.ToMap() {
		keys = append(keys, k)
	}
	return keys
}

func payloadError(family, field, msg string) error {
	return errors.Join(errors.ErrInvalidPayload,
		errors.NewValidationError(fmt.Sprintf("%s payload: %s", family, msg)).WithField(field))
}

func stringsToAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
