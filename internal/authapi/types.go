package authapi

// LoginRequest carries the credentials for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful login. In cookie-session
// deployments the tokens also arrive as HttpOnly cookies and the body
// copies may be ignored.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// SignUpRequest carries the fields for POST /auth/signup.
type SignUpRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// SignUpResponse is returned on successful signup.
type SignUpResponse struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	ConfirmationRequired bool   `json:"confirmation_required"`
}

// ConfirmSignUpRequest carries the fields for POST /auth/confirm-signup.
type ConfirmSignUpRequest struct {
	Email            string `json:"email"`
	ConfirmationCode string `json:"confirmation_code"`
}

// RefreshRequest carries the fields for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest carries the fields for POST /auth/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ForgotPasswordRequest carries the fields for POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ConfirmForgotPasswordRequest carries the fields for
// POST /auth/confirm-forgot-password.
type ConfirmForgotPasswordRequest struct {
	Email            string `json:"email"`
	ConfirmationCode string `json:"confirmation_code"`
	NewPassword      string `json:"new_password"`
}

// MessageResponse is the generic {"message": "..."} acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
