package escalation

// FallbackRole is used when the matrix has no entry for a priority/level pair.
const FallbackRole = "IT Manager"

// Target is who an escalation is routed to.
type Target struct {
	Role string
	User string // Optional specific assignee
}

// Matrix maps priority and level to a target.
type Matrix map[Priority]map[int]Target

// DefaultMatrix returns the built-in routing matrix.
func DefaultMatrix() Matrix {
	return Matrix{
		PriorityCritical: {
			1: {Role: "Security Officer"},
			2: {Role: "CISO"},
			3: {Role: "CEO"},
		},
		PriorityHigh: {
			1: {Role: "Team Lead"},
			2: {Role: "IT Manager"},
			3: {Role: "CISO"},
		},
		PriorityMedium: {
			1: {Role: "Support Agent"},
			2: {Role: "Team Lead"},
			3: {Role: "IT Manager"},
		},
		PriorityLow: {
			1: {Role: "Support Agent"},
			2: {Role: "Team Lead"},
			3: {Role: "IT Manager"},
		},
	}
}

// Resolver maps (priority, level) to a Target over an immutable matrix.
type Resolver struct {
	matrix Matrix
}

// NewResolver creates a Resolver. The matrix is copied so later changes to
// the argument do not affect lookups.
func NewResolver(m Matrix) *Resolver {
	cp := make(Matrix, len(m))
	for prio, levels := range m {
		inner := make(map[int]Target, len(levels))
		for lvl, t := range levels {
			inner[lvl] = t
		}
		cp[prio] = inner
	}
	return &Resolver{matrix: cp}
}

// Resolve returns the target for the given priority and level.
func (r *Resolver) Resolve(priority Priority, level int) Target {
	if t, ok := r.matrix[priority][level]; ok && t.Role != "" {
		return t
	}
	return Target{Role: FallbackRole}
}
