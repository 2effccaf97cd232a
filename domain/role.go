package domain

// Role is the messaging role of a principal, resolved at send time.
type Role int

const (
	RoleRegularUser Role = iota
	RoleTrainer
)

func (r Role) String() string {
	switch r {
	case RoleTrainer:
		return "trainer"
	default:
		return "regular_user"
	}
}

func (r Role) IsTrainer() bool { return r == RoleTrainer }
