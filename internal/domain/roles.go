package domain

// Role is the enumerated permission class persisted in user_roles.
type Role string

const (
	RoleTalent           Role = "talent"
	RoleBusiness         Role = "business"
	RoleFreemiumTalent   Role = "freemium_talent"
	RolePremiumTalent    Role = "premium_talent"
	RoleFreemiumBusiness Role = "freemium_business"
	RolePremiumBusiness  Role = "premium_business"
	RoleAcademyPremium   Role = "academy_premium"
	RoleAdmin            Role = "admin"
)

// DefaultRole is used when no role row is visible for a user.
const DefaultRole = RoleFreemiumTalent

// MapRole maps a persisted role value to the role the UI works with.
// The legacy values "talent" and "business" map to their freemium tier;
// anything unknown falls back to DefaultRole.
func MapRole(persisted string) Role {
	switch Role(persisted) {
	case RoleTalent:
		return RoleFreemiumTalent
	case RoleBusiness:
		return RoleFreemiumBusiness
	case RoleFreemiumTalent, RolePremiumTalent, RoleFreemiumBusiness,
		RolePremiumBusiness, RoleAcademyPremium, RoleAdmin:
		return Role(persisted)
	}
	return DefaultRole
}

// IsBusiness reports whether the role operates on behalf of a company.
func (r Role) IsBusiness() bool {
	switch r {
	case RoleBusiness, RoleFreemiumBusiness, RolePremiumBusiness, RoleAcademyPremium:
		return true
	}
	return false
}

// IsTalent reports whether the role is one of the talent variants.
func (r Role) IsTalent() bool {
	switch r {
	case RoleTalent, RoleFreemiumTalent, RolePremiumTalent:
		return true
	}
	return false
}

// Valid reports whether r is one of the persisted role values.
func (r Role) Valid() bool {
	switch r {
	case RoleTalent, RoleBusiness, RoleFreemiumTalent, RolePremiumTalent,
		RoleFreemiumBusiness, RolePremiumBusiness, RoleAcademyPremium, RoleAdmin:
		return true
	}
	return false
}

// IntentRole maps a signup intent ("business", "talent", a concrete tier)
// to the role it should end up as. ok is false for unknown intents.
func IntentRole(intent string) (role Role, ok bool) {
	switch Role(intent) {
	case RoleBusiness, RoleFreemiumBusiness:
		return RoleFreemiumBusiness, true
	case RolePremiumBusiness:
		return RolePremiumBusiness, true
	case RoleAcademyPremium:
		return RoleAcademyPremium, true
	case RoleTalent, RoleFreemiumTalent:
		return RoleFreemiumTalent, true
	case RolePremiumTalent:
		return RolePremiumTalent, true
	}
	return "", false
}

// Dashboard returns the client route a user with this role lands on.
func (r Role) Dashboard(hasCompany bool) string {
	switch {
	case r == RoleAdmin:
		return "/admin"
	case r.IsBusiness() && !hasCompany:
		return "/company-onboarding"
	case r.IsBusiness():
		return "/business-dashboard"
	default:
		return "/talent-dashboard"
	}
}
