package rule

// Rule is an ordered list of actions applied together to a batch of
// products. A Rule is immutable once built.
type Rule struct {
	code    string
	actions []Action
}

// New builds a rule from actions in application order.
func New(code string, actions ...Action) Rule {
	own := make([]Action, len(actions))
	copy(own, actions)
	return Rule{code: code, actions: own}
}

// Code identifies the rule in logs and results.
func (r Rule) Code() string {
	return r.code
}

// Actions returns the rule's actions in application order.
func (r Rule) Actions() []Action {
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Len returns the number of actions.
func (r Rule) Len() int {
	return len(r.actions)
}
