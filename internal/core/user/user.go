package user

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// Member is the directory view of a user: who they are, which company they
// belong to and who they report to. It is also the authenticated principal
// carried in request contexts.
type Member struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	ManagerID *int64 `json:"manager_id,omitempty"`
	IsActive  bool   `json:"is_active"`
}

func (m *Member) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if m.Role == r {
			return true
		}
	}
	return false
}

type Company struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
}
