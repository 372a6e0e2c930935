package handler

const (
	errInternalServer = "Internal server error"
	errTokenInvalid   = "Token is invalid or expired"
	errTokenMissing   = "Token is required"
	msgCheckInbox     = "Check your inbox for a sign-in link"
)
