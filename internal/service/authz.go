package service

import "github.com/dualsign/attendance-api/internal/models"

// canAccess is the single ownership predicate applied before teacher-scoped
// operations. Admins have unrestricted access; teachers only reach resources
// they own; all other roles are denied.
func canAccess(claims *models.JWTClaims, ownerID string) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return claims.UserID == ownerID
	default:
		return false
	}
}
