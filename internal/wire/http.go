// Package wire holds the JSON bodies exchanged between the client and the
// dev backend.
package wire

// LoginRequest is the HTTP POST /auth/login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// User is the public view of a signed-in user.
type User struct {
	Email string `json:"email"`
}

// LoginResponse is the HTTP POST /auth/login response body.
type LoginResponse struct {
	User User `json:"user"`
	// AccessToken is the short-lived bearer token.
	AccessToken string `json:"accessToken"`
	// RefreshToken mirrors the refreshToken cookie set on the same response.
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse is the HTTP POST /auth/refresh response body.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse is returned by endpoints with nothing else to say.
type SuccessResponse struct {
	Success bool `json:"success"`
}
