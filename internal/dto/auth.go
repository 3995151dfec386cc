package dto

// LoginRequest carries token endpoint credentials.
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required" validate:"required"`
	Password string `form:"password" json:"password" binding:"required" validate:"required"`
}

// TokenResponse mirrors the token endpoint contract.
type TokenResponse struct {
	Access string `json:"access"`
}

// FixPidV2Request asks for a legacy pid correction on a known document.
type FixPidV2Request struct {
	PidV3        string `json:"pid_v3" binding:"required,len=23"`
	CorrectPidV2 string `json:"correct_pid_v2" binding:"required,len=23"`
}

// FixPidV2Response confirms the corrected value.
type FixPidV2Response struct {
	V2 string `json:"v2"`
}
