package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	StaffID      uuid.UUID
	Role         enums.StaffRole
	RestaurantID *uuid.UUID
}

// AccessTokenClaims represents the typed JWT issued to restaurant staff.
// RestaurantID is absent for platform admins, who operate across tenants.
type AccessTokenClaims struct {
	StaffID      uuid.UUID       `json:"staff_id"`
	Role         enums.StaffRole `json:"role"`
	RestaurantID *uuid.UUID      `json:"restaurant_id,omitempty"`
	jwt.RegisteredClaims
}
