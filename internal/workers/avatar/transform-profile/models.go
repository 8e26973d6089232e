package transformprofile

import "avatar-transformer/internal/orchestrator"

type Input struct {
	Handle         string `json:"handle"`
	TurnstileToken string `json:"turnstileToken"`
	ClientIP       string `json:"clientIp,omitempty"`
}

type Output struct {
	Status           orchestrator.Status `json:"status"`
	ProfileImage     string              `json:"profileImage,omitempty"`
	TransformedImage string              `json:"transformedImage,omitempty"`
}

// ToVariables maps the output onto process variables.
func (o *Output) ToVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"status": string(o.Status),
	}
	if o.ProfileImage != "" {
		vars["profileImage"] = o.ProfileImage
	}
	if o.TransformedImage != "" {
		vars["transformedImage"] = o.TransformedImage
	}
	return vars
}
