package units

import (
	"context"
	"fmt"
	"math"

	"agentarena/internal/types"
	"agentarena/internal/unit"

	"go.uber.org/zap"
)

const (
	pidTimeStep        = 0.05
	pidMass            = 1.0
	pidDefaultSteps    = 2000
	pidDefaultTol      = 0.05
	pidCancelCheckMask = 255
)

// vec3 is a point or force in world space.
type vec3 [3]float64

func (a vec3) add(b vec3) vec3 { return vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec3) sub(b vec3) vec3 { return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec3) scale(k float64) vec3 { return vec3{a[0] * k, a[1] * k, a[2] * k} }
func (a vec3) norm() float64 { return math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2]) }

// pidGains are the controller coefficients.
type pidGains struct {
	kp, ki, kd float64
}

// pidController is a per-axis PID controller over a 3-D error.
type pidController struct {
	gains    pidGains
	integral vec3
	prevErr  vec3
}

// prime seeds the previous error so the first derivative term does not kick.
func (c *pidController) prime(err vec3) { c.prevErr = err }

func (c *pidController) compute(err vec3, dt float64) vec3 {
	c.integral = c.integral.add(err.scale(dt))
	deriv := err.sub(c.prevErr).scale(1 / dt)
	c.prevErr = err
	return err.scale(c.gains.kp).add(c.integral.scale(c.gains.ki)).add(deriv.scale(c.gains.kd))
}

// obstacle is a sphere the body may pass through; each step spent inside
// one counts as a collision.
type obstacle struct {
	center vec3
	radius float64
}

// PIDNavigator drives a point mass from start_pos to target_pos with a PID
// controller and reports how well it got there.
//
// Context keys:
//
//	pid         {kp, ki, kd}   kp required, ki and kd default to 0
//	start_pos   [x, y, z]      required
//	target_pos  [x, y, z]      required
//	max_steps   int            default 2000
//	tolerance   float          default 0.05
//	obstacles   [{center: [x, y, z], radius: r}]
type PIDNavigator struct {
	unit.Base
	logger *zap.Logger
}

// NewPIDNavigator creates the pid-navigator runner.
func NewPIDNavigator() *PIDNavigator {
	return &PIDNavigator{Base: unit.MustBase(NamePIDNavigator), logger: zap.NewNop()}
}

func (p *PIDNavigator) Run(ctx context.Context, tc types.Context) (types.Metrics, error) {
	gains, err := p.gains(tc)
	if err != nil {
		return nil, err
	}
	start, err := p.position(tc, "start_pos")
	if err != nil {
		return nil, err
	}
	target, err := p.position(tc, "target_pos")
	if err != nil {
		return nil, err
	}
	obstacles, err := p.obstacles(tc)
	if err != nil {
		return nil, err
	}
	maxSteps, ok := tc.IntOr("max_steps", pidDefaultSteps)
	if !ok || maxSteps <= 0 {
		return nil, &InvalidInputError{Unit: p.Name(), Key: "max_steps", Reason: "must be a positive integer"}
	}
	tolerance, ok := tc.FloatOr("tolerance", pidDefaultTol)
	if !ok || tolerance <= 0 {
		return nil, &InvalidInputError{Unit: p.Name(), Key: "tolerance", Reason: "must be positive"}
	}

	ctrl := &pidController{gains: gains}
	ctrl.prime(target.sub(start))

	var (
		pos, vel   = start, vec3{}
		pathLength float64
		collisions int
		reached    bool
		steps      int
	)
	for steps < maxSteps {
		if steps&pidCancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		errVec := target.sub(pos)
		if errVec.norm() < tolerance {
			reached = true
			break
		}

		force := ctrl.compute(errVec, pidTimeStep)
		vel = vel.add(force.scale(pidTimeStep / pidMass))
		next := pos.add(vel.scale(pidTimeStep))
		pathLength += next.sub(pos).norm()
		pos = next
		steps++

		for _, o := range obstacles {
			if pos.sub(o.center).norm() <= o.radius {
				collisions++
				break
			}
		}
	}
	if !reached && target.sub(pos).norm() < tolerance {
		reached = true
	}

	efficiency := 0.0
	if pathLength > 0 {
		efficiency = target.sub(start).norm() / pathLength
	}
	p.logger.Debug("Navigation finished",
		zap.Bool("reached", reached),
		zap.Int("steps", steps),
		zap.Int("collisions", collisions))

	return types.Metrics{
		"reached":         reached,
		"steps":           steps,
		"path_efficiency": efficiency,
		"collision_rate":  float64(collisions) / float64(maxSteps),
		"final_distance":  target.sub(pos).norm(),
	}, nil
}

func (p *PIDNavigator) gains(tc types.Context) (pidGains, error) {
	raw, present := tc["pid"]
	if !present {
		return pidGains{}, &MissingInputError{Unit: p.Name(), Key: "pid"}
	}
	m, ok := types.ExtractMap(raw)
	if !ok {
		return pidGains{}, &InvalidInputError{Unit: p.Name(), Key: "pid", Reason: "must be a mapping with kp, ki, kd"}
	}
	kp, ok := types.ExtractFloat64(m["kp"])
	if !ok {
		return pidGains{}, &InvalidInputError{Unit: p.Name(), Key: "pid", Reason: "kp must be numeric"}
	}
	g := pidGains{kp: kp}
	for key, dst := range map[string]*float64{"ki": &g.ki, "kd": &g.kd} {
		v, present := m[key]
		if !present {
			continue
		}
		f, ok := types.ExtractFloat64(v)
		if !ok {
			return pidGains{}, &InvalidInputError{Unit: p.Name(), Key: "pid", Reason: key + " must be numeric"}
		}
		*dst = f
	}
	return g, nil
}

func (p *PIDNavigator) position(tc types.Context, key string) (vec3, error) {
	if !tc.Has(key) {
		return vec3{}, &MissingInputError{Unit: p.Name(), Key: key}
	}
	return toVec3(p.Name(), key, tc[key])
}

func (p *PIDNavigator) obstacles(tc types.Context) ([]obstacle, error) {
	raw, present := tc["obstacles"]
	if !present || raw == nil {
		return nil, nil
	}
	var list []any
	switch x := raw.(type) {
	case []any:
		list = x
	case []map[string]any:
		for _, m := range x {
			list = append(list, m)
		}
	default:
		return nil, &InvalidInputError{Unit: p.Name(), Key: "obstacles", Reason: "must be a list"}
	}
	out := make([]obstacle, 0, len(list))
	for i, item := range list {
		m, ok := types.ExtractMap(item)
		if !ok {
			return nil, &InvalidInputError{Unit: p.Name(), Key: "obstacles", Reason: fmt.Sprintf("entry %d must be a mapping", i)}
		}
		center, err := toVec3(p.Name(), "obstacles", m["center"])
		if err != nil {
			return nil, err
		}
		radius, ok := types.ExtractFloat64(m["radius"])
		if !ok || radius <= 0 {
			return nil, &InvalidInputError{Unit: p.Name(), Key: "obstacles", Reason: fmt.Sprintf("entry %d needs a positive radius", i)}
		}
		out = append(out, obstacle{center: center, radius: radius})
	}
	return out, nil
}

func toVec3(unitName, key string, v any) (vec3, error) {
	xs, ok := types.ExtractFloatSlice(v)
	if !ok || len(xs) != 3 {
		return vec3{}, &InvalidInputError{Unit: unitName, Key: key, Reason: "must be a numeric [x, y, z] triple"}
	}
	return vec3{xs[0], xs[1], xs[2]}, nil
}
