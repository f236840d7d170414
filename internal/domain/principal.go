package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Principal is the acting identity supplied by the auth layer.
type Principal struct {
	Username string
	Role     Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess reports whether p may act on a resource owned by owner.
func (p Principal) CanAccess(owner string) bool {
	return p.IsAdmin() || (p.Username != "" && p.Username == owner)
}
