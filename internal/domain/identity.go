package domain

// Role names carried in JWT claims.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
)

// GuestUserID is the sentinel identity used when no authenticated user is
// present. The notification core is identity-agnostic and treats it like any
// other user id.
const GuestUserID = "guest"
