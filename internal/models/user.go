package models

// User is the signed in operator as returned by the auth endpoints
type User struct {
	ID                int    `json:"id"`
	Username          string `json:"username"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	DistributorCenter string `json:"distributor_center,omitempty"`
}

// Credentials is the login body
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenPair is returned by the login and refresh endpoints
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    *User  `json:"user,omitempty"`
}
