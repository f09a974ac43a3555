package validation

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

// cronParser accepts the five-field form with optional seconds and the
// @every / @daily descriptors, matching the scheduler.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a task schedule.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cronParser.Parse(spec)
}

// validateSemantic checks node kinds, configs, inputs and every edge
// against the descriptors of freshly created components. It returns the
// descriptors of the nodes it could create, keyed by node id.
func validateSemantic(def *schema.TaskDefinition, lookup ComponentLookup) (*schema.ValidationResult, map[string]component.Descriptor) {
	result := &schema.ValidationResult{}
	descs := make(map[string]component.Descriptor, len(def.Nodes))
	ids := make(map[string]bool, len(def.Nodes))

	if def.Schedule != "" {
		if _, err := ParseSchedule(def.Schedule); err != nil {
			result.AddError("schedule", schema.ErrCodeValidation, fmt.Sprintf("invalid schedule %q: %v", def.Schedule, err))
		}
	}

	for i, n := range def.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if ids[n.ID] {
			result.AddNodeError(n.ID, path+".id", schema.ErrCodeConflict, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		ids[n.ID] = true
		if lookup == nil {
			continue
		}

		if !lookup.Has(n.Kind) {
			result.AddNodeError(n.ID, path+".kind", schema.ErrCodeComponentUnavailable,
				fmt.Sprintf("component kind %q not registered", n.Kind))
			continue
		}
		c, err := lookup.New(n.Kind, n.Config)
		if err != nil {
			result.AddNodeError(n.ID, path+".config", schema.ErrCodeValidation, err.Error())
			continue
		}
		desc := c.Descriptor()
		if d, ok := c.(component.Disposer); ok {
			d.Dispose()
		}
		descs[n.ID] = desc

		validateInputs(path, n, desc, result)
		if desc.IsOperator && (n.BreakInput || n.BreakOutput) {
			result.AddNodeWarning(n.ID, path, schema.ErrCodeValidation,
				fmt.Sprintf("breakpoint on operator %q never triggers", n.ID))
		}
	}

	for i, c := range def.Calls {
		validateCall(fmt.Sprintf("calls[%d]", i), c, ids, descs, result)
	}

	fed := make(map[string]int)
	for i, p := range def.Parameters {
		path := fmt.Sprintf("parameters[%d]", i)
		if validateParameter(path, p, ids, descs, result) {
			key := p.To + "." + p.Input
			fed[key]++
			if fed[key] == 2 {
				result.AddNodeWarning(p.To, path, schema.ErrCodeValidation,
					fmt.Sprintf("input %s is fed by several parameters; the last transfer wins", key))
			}
		}
	}

	return result, descs
}

func validateInputs(path string, n schema.NodeDefinition, desc component.Descriptor, result *schema.ValidationResult) {
	for name, v := range n.Inputs {
		p, ok := desc.Input(name)
		if !ok {
			result.AddNodeError(n.ID, path+".inputs."+name, schema.ErrCodePortNotFound,
				fmt.Sprintf("%s has no input %q", desc.Kind, name))
			continue
		}
		if _, err := convert.Coerce(v, p.Type); err != nil {
			result.AddNodeError(n.ID, path+".inputs."+name, schema.ErrCodeValidation,
				fmt.Sprintf("value %v is not a %s", v, p.Type))
		}
	}
}

func validateCall(path string, c schema.CallDefinition, ids map[string]bool, descs map[string]component.Descriptor, result *schema.ValidationResult) {
	ok := checkRef(path+".from", c.From, ids, result)
	ok = checkRef(path+".to", c.To, ids, result) && ok
	if !ok {
		return
	}

	if src, known := descs[c.From]; known && !src.HasResult(c.Result) {
		result.AddNodeError(c.From, path+".result", schema.ErrCodePortNotFound,
			fmt.Sprintf("node %q has no result %q", c.From, c.Result))
	}
	dst, known := descs[c.To]
	if !known {
		return
	}
	if dst.IsOperator {
		result.AddNodeError(c.To, path+".to", schema.ErrCodeValidation,
			fmt.Sprintf("node %q is an operator and cannot be called", c.To))
		return
	}
	port := c.Port
	if port == "" {
		port = component.DefaultStartPort
	}
	if !dst.HasStartPort(port) {
		result.AddNodeError(c.To, path+".port", schema.ErrCodePortNotFound,
			fmt.Sprintf("node %q has no start port %q", c.To, port))
	}
}

// validateParameter reports whether the edge is well formed.
func validateParameter(path string, p schema.ParameterDefinition, ids map[string]bool, descs map[string]component.Descriptor, result *schema.ValidationResult) bool {
	ok := checkRef(path+".from", p.From, ids, result)
	ok = checkRef(path+".to", p.To, ids, result) && ok
	if !ok {
		return false
	}

	src, srcKnown := descs[p.From]
	dst, dstKnown := descs[p.To]
	var out, in component.Port
	if srcKnown {
		if out, ok = src.Output(p.Output); !ok {
			result.AddNodeError(p.From, path+".output", schema.ErrCodePortNotFound,
				fmt.Sprintf("node %q has no output %q", p.From, p.Output))
		}
	}
	if dstKnown {
		var found bool
		if in, found = dst.Input(p.Input); !found {
			result.AddNodeError(p.To, path+".input", schema.ErrCodePortNotFound,
				fmt.Sprintf("node %q has no input %q", p.To, p.Input))
			ok = false
		}
	}
	if !ok || !srcKnown || !dstKnown {
		return ok
	}

	if convert.CanBeAssignedTo(out.Type, in.Type) == convert.NotAssignable {
		result.AddNodeWarning(p.To, path, schema.ErrCodeValidation,
			fmt.Sprintf("%s output %s.%s never reaches %s input %s.%s", out.Type, p.From, p.Output, in.Type, p.To, p.Input))
	}
	return true
}

func checkRef(path, id string, ids map[string]bool, result *schema.ValidationResult) bool {
	if ids[id] {
		return true
	}
	result.AddError(path, schema.ErrCodeNotFound, fmt.Sprintf("references non-existent node %q", id))
	return false
}
