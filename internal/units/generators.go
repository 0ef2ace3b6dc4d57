package units

import (
	"context"
	"math/rand"
	"strings"
	"unicode"

	"agentarena/internal/types"
	"agentarena/internal/unit"
)

// corruptionAlphabet is what corrupted characters are replaced with.
const corruptionAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 .,;:!?#@%&*"

// corruptedKeys are the context keys the text corruptor overwrites.
var corruptedKeys = []string{"text", "initial_text"}

// =============================================================================
// UPPERCASE
// =============================================================================

// Uppercase overwrites every string value of the seed with its upper-case
// form. Non-string values pass through untouched.
type Uppercase struct {
	unit.AdversarialBase
}

// NewUppercase creates the uppercase generator.
func NewUppercase() *Uppercase {
	return &Uppercase{AdversarialBase: unit.MustAdversarialBase(NameUppercase)}
}

func (u *Uppercase) GenerateContext(_ context.Context, seed types.Context) (types.Context, error) {
	out := seed.Clone()
	for k, v := range seed {
		if s, ok := v.(string); ok {
			out[k] = strings.ToUpper(s)
		}
	}
	return out, nil
}

// =============================================================================
// TEXT CORRUPTOR
// =============================================================================

// TextCorruptor overwrites "text" and "initial_text" with a corrupted copy.
// Each character is replaced with probability corruption_rate (default
// 0.1); the replacement stream is seeded by corruption_seed (default 1), so
// the same seed always yields the same corruption. Whitespace is kept so
// word structure survives unless preserve_whitespace is false.
type TextCorruptor struct {
	unit.AdversarialBase
}

// NewTextCorruptor creates the text-corruptor generator.
func NewTextCorruptor() *TextCorruptor {
	return &TextCorruptor{AdversarialBase: unit.MustAdversarialBase(NameTextCorruptor)}
}

func (c *TextCorruptor) GenerateContext(_ context.Context, seed types.Context) (types.Context, error) {
	rate, ok := seed.FloatOr("corruption_rate", 0.1)
	if !ok || rate < 0 || rate > 1 {
		return nil, &InvalidInputError{Unit: c.Name(), Key: "corruption_rate", Reason: "must be a number within [0, 1]"}
	}
	rngSeed, ok := seed.IntOr("corruption_seed", 1)
	if !ok {
		return nil, &InvalidInputError{Unit: c.Name(), Key: "corruption_seed", Reason: "must be an integer"}
	}
	keepSpace, ok := seed.BoolOr("preserve_whitespace", true)
	if !ok {
		return nil, &InvalidInputError{Unit: c.Name(), Key: "preserve_whitespace", Reason: "must be a boolean"}
	}
	rng := rand.New(rand.NewSource(int64(rngSeed)))

	out := seed.Clone()
	for _, key := range corruptedKeys {
		raw, present := seed[key]
		if !present {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return nil, &InvalidInputError{Unit: c.Name(), Key: key, Reason: "must be a string"}
		}
		out[key] = corrupt(s, rate, keepSpace, rng)
	}
	return out, nil
}

func corrupt(s string, rate float64, keepSpace bool, rng *rand.Rand) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (keepSpace && unicode.IsSpace(r)) || rng.Float64() >= rate {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(corruptionAlphabet[rng.Intn(len(corruptionAlphabet))])
	}
	return b.String()
}

// =============================================================================
// TARGET PERTURBATION
// =============================================================================

// TargetPerturb overwrites "target_pos" with a copy whose every coordinate is
// shifted uniformly within ±perturb_scale (default 0.5). The shift is seeded
// by perturb_seed (default 1).
type TargetPerturb struct {
	unit.AdversarialBase
}

// NewTargetPerturb creates the target-perturb generator.
func NewTargetPerturb() *TargetPerturb {
	return &TargetPerturb{AdversarialBase: unit.MustAdversarialBase(NameTargetPerturb)}
}

func (p *TargetPerturb) GenerateContext(_ context.Context, seed types.Context) (types.Context, error) {
	if !seed.Has("target_pos") {
		return nil, &MissingInputError{Unit: p.Name(), Key: "target_pos"}
	}
	target, ok := seed.FloatSlice("target_pos")
	if !ok {
		return nil, &InvalidInputError{Unit: p.Name(), Key: "target_pos", Reason: "must be a numeric list"}
	}
	scale, ok := seed.FloatOr("perturb_scale", 0.5)
	if !ok || scale < 0 {
		return nil, &InvalidInputError{Unit: p.Name(), Key: "perturb_scale", Reason: "must be a non-negative number"}
	}
	rngSeed, ok := seed.IntOr("perturb_seed", 1)
	if !ok {
		return nil, &InvalidInputError{Unit: p.Name(), Key: "perturb_seed", Reason: "must be an integer"}
	}
	rng := rand.New(rand.NewSource(int64(rngSeed)))

	perturbed := make([]float64, len(target))
	for i, x := range target {
		perturbed[i] = x + (rng.Float64()*2-1)*scale
	}
	return seed.With("target_pos", perturbed), nil
}
