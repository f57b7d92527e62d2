package rule

// named decorates a rule with a display name. It forwards all predicate and
// action access to the delegate and overrides only the string form, so logs
// and metrics can identify rules without the rules themselves carrying names.
type named struct {
	Rule
	name string
}

// Named wraps a rule under a display name.
func Named(name string, r Rule) Rule {
	return &named{Rule: r, name: name}
}

func (n *named) String() string {
	return n.name
}
