package transformprofile

import (
	"avatar-transformer/internal/common/validation"
	"avatar-transformer/internal/orchestrator"
)

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"handle", "turnstileToken"},
		Properties: map[string]validation.Property{
			"handle": {
				Type:        "string",
				Description: "X/Twitter handle, with or without a leading @",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(64),
			},
			"turnstileToken": {
				Type:        "string",
				Description: "Bot challenge token issued to the caller",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(4096),
			},
			"clientIp": {
				Type:        "string",
				Description: "Caller address used for rate limiting",
				MaxLength:   intPtr(64),
			},
		},
		AdditionalProperties: true,
	}
}

// GetOutputSchema describes the variables a completed job hands back.
func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"status", "transformedImage"},
		Properties: map[string]validation.Property{
			"status": {
				Type:        "string",
				Description: "Final flow status",
				Enum:        []string{string(orchestrator.StatusComplete)},
			},
			"profileImage": {
				Type:        "string",
				Description: "Resolved profile image URL",
			},
			"transformedImage": {
				Type:        "string",
				Description: "Generated image URL",
				MinLength:   intPtr(1),
			},
		},
	}
}

func intPtr(i int) *int {
	return &i
}
