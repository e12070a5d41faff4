package planner

import (
	"context"

	"github.com/keikotool/keiko/observability"
	"github.com/keikotool/keiko/registry"
	"github.com/keikotool/keiko/requirement"
)

// MaxWalkDepth bounds the transitive expansion so malformed or circular
// registry metadata can never stall a run.
const MaxWalkDepth = 10

// Walker expands requirements into their declared transitive requirements,
// producing a best-effort name -> latest version proposal. It does not
// guarantee global consistency; the compatibility verifier remains the
// authority on installability.
type Walker struct {
	registry *registry.Client
	logger   observability.Logger
	maxDepth int
}

// NewWalker creates a transitive walker over the given registry client.
func NewWalker(reg *registry.Client, logger observability.Logger) *Walker {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	return &Walker{
		registry: reg,
		logger:   logger,
		maxDepth: MaxWalkDepth,
	}
}

// workItem is one pending requirement expansion.
type workItem struct {
	raw   string
	depth int
}

// ResolveClosure resolves the seed requirements and their declared
// transitive requirements into a name -> latest version map.
//
// An explicit stack with a per-item depth counter replaces recursion, and a
// processed set guards against cycles and duplicate work. Requirements
// conditional on an extra selector are skipped entirely: they are optional
// install-time deps of the dependency, not unconditional needs.
func (w *Walker) ResolveClosure(ctx context.Context, seeds []string) map[string]string {
	resolved := make(map[string]string)
	processed := make(map[string]bool)

	stack := make([]workItem, 0, len(seeds))
	for i := len(seeds) - 1; i >= 0; i-- {
		stack = append(stack, workItem{raw: seeds[i]})
	}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return resolved
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.depth > w.maxDepth {
			continue
		}

		req, perr := requirement.Parse(item.raw)
		if perr != nil {
			w.logger.WarnContext(ctx, "Skipping unparsable requirement {Requirement}: {Error}", item.raw, perr)
		}
		if req.NormalizedName == "" || processed[req.NormalizedName] {
			continue
		}
		if req.IsExtraConditional() {
			continue
		}
		processed[req.NormalizedName] = true

		latest, ok := w.registry.GetLatestVersion(ctx, req.NormalizedName)
		if !ok {
			w.logger.DebugContext(ctx, "Could not determine version for {Package}", req.NormalizedName)
			continue
		}
		resolved[req.NormalizedName] = latest

		w.logger.VerboseContext(ctx, "Resolved {Package} {Version} at depth {Depth}",
			req.NormalizedName, latest, item.depth)

		for _, child := range w.registry.Requirements(ctx, req.NormalizedName) {
			if child == "" {
				continue
			}
			stack = append(stack, workItem{raw: child, depth: item.depth + 1})
		}
	}

	return resolved
}
