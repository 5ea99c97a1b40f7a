package accounts

// AccountResponse omits the password hash.
type AccountResponse struct {
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	IsBlocked bool   `json:"isBlocked"`
	Protected bool   `json:"protected"`
}

type createAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func toResponse(a Account, protected bool) AccountResponse {
	return AccountResponse{
		Username:  a.Username,
		Role:      a.Role,
		IsBlocked: a.IsBlocked,
		Protected: protected,
	}
}
