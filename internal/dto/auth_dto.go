package dto

type SignUpRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	CaptchaToken string `json:"captchaToken"`
}

type SendOTPRequest struct {
	Email        string `json:"email"`
	CaptchaToken string `json:"captchaToken"`
}

type ResendOTPRequest struct {
	Email string `json:"email"`
}

type SignInRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
