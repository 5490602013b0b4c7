package user

// User is an identity: the code (e.g. "SV001" for a student, "GV012" for
// staff) is the addressing key for messages and presence.
type User struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Password    string `json:"-"`
}

type RegisterRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}
