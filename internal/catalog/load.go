package catalog

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// schema constrains catalog files. Every entry must name both ids and a known
// vehicle class; unknown fields are rejected by the closed struct.
const schema = `
#Entry: close({
	vtype:     string & !=""
	blueprint: string & !=""
	class:     "passenger" | "motorcycle" | "bicycle" | "truck" | "bus" | "emergency"
})

vehicles: [...#Entry]
`

// LoadDir loads and validates all CUE files in dir and returns the catalog
// declared under the top-level "vehicles" list.
//
// Validation is fail-fast: the first schema violation aborts the load with a
// CUE error that carries file/position context.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog path is not a directory: %s", dir)
	}

	ctx := cuecontext.New()

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances found in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading catalog CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building catalog CUE value: %w", err)
	}

	return decode(ctx, value)
}

// LoadBytes builds a catalog from in-memory CUE source. Used by tests and by
// validate to check a single file without directory layout requirements.
func LoadBytes(src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling catalog CUE: %w", err)
	}
	return decode(ctx, value)
}

func decode(ctx *cue.Context, value cue.Value) (*Catalog, error) {
	schemaVal := ctx.CompileString(schema)
	if err := schemaVal.Err(); err != nil {
		return nil, fmt.Errorf("internal: catalog schema: %w", err)
	}

	unified := value.Unify(schemaVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("catalog validation: %w", err)
	}

	vehiclesVal := unified.LookupPath(cue.ParsePath("vehicles"))
	if !vehiclesVal.Exists() {
		return nil, fmt.Errorf(`catalog has no top-level "vehicles" list`)
	}

	var raw struct {
		Vehicles []Entry `json:"vehicles"`
	}
	if err := unified.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if len(raw.Vehicles) == 0 {
		return nil, fmt.Errorf("catalog declares no vehicles")
	}

	return New(raw.Vehicles)
}
