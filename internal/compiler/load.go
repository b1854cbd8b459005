package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/orbit/internal/ir"
)

// LoadPlans compiles the plans in a CUE file, or in every CUE file of a
// directory unified as one instance.
func LoadPlans(path string) ([]*ir.Plan, error) {
	v, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	return CompilePlans(v)
}

// LoadPlan compiles the plan called name from path. An empty name selects
// the only plan, and is an error when there are several.
func LoadPlan(path, name string) (*ir.Plan, error) {
	plans, err := LoadPlans(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(plans) > 1 {
			names := make([]string, len(plans))
			for i, p := range plans {
				names[i] = p.Name
			}
			return nil, fmt.Errorf("%s defines %d plans %v, choose one", path, len(plans), names)
		}
		return plans[0], nil
	}
	i := slices.IndexFunc(plans, func(p *ir.Plan) bool { return p.Name == name })
	if i < 0 {
		return nil, fmt.Errorf("%s has no plan %q", path, name)
	}
	return plans[i], nil
}

// LoadValue builds the CUE value at path.
func LoadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("load %s: %w", path, err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("load %s: no CUE instances", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, formatCUEError(inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}
