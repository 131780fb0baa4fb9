package auth

import (
	"solestore-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthContext is the verified caller identity. Endpoints with optional
// authentication receive a nil *AuthContext for anonymous callers.
type AuthContext struct {
	UserID primitive.ObjectID
	Role   models.Role
}

func (a *AuthContext) IsAdmin() bool {
	return a != nil && a.Role == models.RoleAdmin
}

// HasRole reports whether the caller satisfies role. Admins satisfy every role.
func (a *AuthContext) HasRole(role models.Role) bool {
	if a == nil {
		return false
	}
	return a.Role == role || a.Role == models.RoleAdmin
}

// UserRef is the owner reference stored on orders: nil for guests.
func (a *AuthContext) UserRef() *primitive.ObjectID {
	if a == nil {
		return nil
	}
	id := a.UserID
	return &id
}

func CanViewOrder(a *AuthContext, o models.Order) bool {
	return a.IsAdmin() || (a != nil && o.OwnedBy(a.UserID))
}

func CanCancelOwnOrder(a *AuthContext, o models.Order) bool {
	return a != nil && o.OwnedBy(a.UserID)
}

// CanModifyReview is true for the author; deletion is additionally open to admins.
func CanModifyReview(a *AuthContext, r models.Review, deleting bool) bool {
	if a == nil {
		return false
	}
	if r.User == a.UserID {
		return true
	}
	return deleting && a.IsAdmin()
}
