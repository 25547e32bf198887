package sql

// Predicate is a where predicate. Predicates are trees: leaves compare
// operands, inner nodes combine children with AND/OR.
type Predicate struct {
	op    string
	left  Expression
	right any
	list  []any
	sub   *Selector
	nodes []*Predicate
	not   bool
}

// P creates a new predicate from a raw SQL fragment.
//
//	P("? > 0", 1)
func P(s string, args ...any) *Predicate {
	return &Predicate{op: "raw", left: Raw(s, args...)}
}

// EQ returns a "=" predicate between a column and a value.
func EQ(col string, value any) *Predicate {
	return &Predicate{op: " = ", left: C(col), right: value}
}

// NEQ returns a "<>" predicate between a column and a value.
func NEQ(col string, value any) *Predicate {
	return &Predicate{op: " <> ", left: C(col), right: value}
}

// GT returns a ">" predicate between a column and a value.
func GT(col string, value any) *Predicate {
	return &Predicate{op: " > ", left: C(col), right: value}
}

// ColumnsEQ returns a "=" predicate between two columns.
func ColumnsEQ(c1, c2 string) *Predicate {
	return &Predicate{op: " = ", left: C(c1), right: C(c2)}
}

// ColumnsGT returns a ">" predicate between two columns.
func ColumnsGT(c1, c2 string) *Predicate {
	return &Predicate{op: " > ", left: C(c1), right: C(c2)}
}

// IsNull returns the `IS NULL` predicate.
func IsNull(col string) *Predicate {
	return &Predicate{op: " IS NULL", left: C(col)}
}

// NotNull returns the `IS NOT NULL` predicate.
func NotNull(col string) *Predicate {
	return &Predicate{op: " IS NOT NULL", left: C(col)}
}

// In returns the `IN` predicate.
func In(col string, args ...any) *Predicate {
	return &Predicate{op: " IN ", left: C(col), list: args}
}

// InSelector returns the `IN` predicate over a sub-query.
func InSelector(col string, s *Selector) *Predicate {
	return &Predicate{op: " IN ", left: C(col), sub: s}
}

// And combines all given predicates with AND between them.
func And(preds ...*Predicate) *Predicate {
	return combine("AND", preds)
}

// Or combines all given predicates with OR between them.
func Or(preds ...*Predicate) *Predicate {
	return combine("OR", preds)
}

// Not wraps the given predicate with the not predicate.
func Not(p *Predicate) *Predicate {
	return &Predicate{op: "group", nodes: []*Predicate{p}, not: true}
}

// And appends the given predicates to this one with AND.
func (p *Predicate) And(preds ...*Predicate) *Predicate {
	return And(append([]*Predicate{p}, preds...)...)
}

// Or appends the given predicates to this one with OR.
func (p *Predicate) Or(preds ...*Predicate) *Predicate {
	return Or(append([]*Predicate{p}, preds...)...)
}

// Query returns the predicate rendered with the default dialect.
func (p *Predicate) Query() (string, []any) {
	b := newBuilder("")
	p.render(b)
	return b.Query()
}

func combine(op string, preds []*Predicate) *Predicate {
	nodes := make([]*Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			nodes = append(nodes, p)
		}
	}
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &Predicate{op: op, nodes: nodes}
}

func (p *Predicate) render(b *Builder) {
	switch p.op {
	case "raw":
		p.left.render(b)
	case "AND", "OR":
		for i, n := range p.nodes {
			if i > 0 {
				b.WriteByte(' ').WriteString(p.op).WriteByte(' ')
			}
			nested := n.op == "AND" || n.op == "OR"
			if nested {
				b.WriteByte('(')
			}
			n.render(b)
			if nested {
				b.WriteByte(')')
			}
		}
	case "group":
		if p.not {
			b.WriteString("NOT ")
		}
		b.WriteByte('(')
		p.nodes[0].render(b)
		b.WriteByte(')')
	case " IS NULL", " IS NOT NULL":
		p.left.render(b)
		b.WriteString(p.op)
	case " IN ":
		p.left.render(b)
		b.WriteString(p.op)
		if p.sub != nil {
			b.WriteByte('(')
			p.sub.renderSelect(b)
			b.WriteByte(')')
			return
		}
		b.WriteByte('(').Args(p.list...).WriteByte(')')
	default:
		p.left.render(b)
		b.WriteString(p.op)
		b.Arg(p.right)
	}
}
