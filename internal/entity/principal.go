package entity

// Principal is the authenticated caller of the session management endpoints, taken from the
// access token claims.
type Principal struct {
	ID       string
	Username string
	Email    string
	Role     string
}
