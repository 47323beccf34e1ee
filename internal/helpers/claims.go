package helpers

type EnhancedClaims struct {
	*CustomClaims
	Role   string `json:"role"`
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
}

// Helper methods for role checking
func (ec *EnhancedClaims) IsAdmin() bool {
	return ec.Role == "admin"
}

func (ec *EnhancedClaims) IsOwner(userID string) bool {
	return ec.UserID == userID
}

func (ec *EnhancedClaims) GetSafeRole() string {
	if ec.Role == "" {
		return "guest"
	}
	return ec.Role
}

// NewEnhancedClaims resolves the application role from app_metadata.
func NewEnhancedClaims(claims *CustomClaims) *EnhancedClaims {
	role := ""
	for _, r := range claims.AppMetadata.Roles {
		if r == "admin" {
			role = "admin"
			break
		}
		if role == "" {
			role = r
		}
	}
	return &EnhancedClaims{
		CustomClaims: claims,
		Role:         role,
		UserID:       claims.Subject,
		Email:        claims.Email,
	}
}
