package permissions

import (
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/models"
)

// ErrInvalidParameters is returned when the user or server passed to a
// check cannot be resolved. Callers map it to a 400 rather than a 403 so
// a malformed request is not mistaken for a denied one.
var ErrInvalidParameters = errors.New("invalid user or server")

// Gate answers permission questions for a user against a server. Owners
// and admins pass every check; subusers are checked against their stored
// permission set.
type Gate struct {
	db *gorm.DB
}

func NewGate(db *gorm.DB) *Gate {
	return &Gate{db: db}
}

// Has reports whether the user holds the given permission on the server.
func (g *Gate) Has(userID, serverID uint, perm Permission) (bool, error) {
	perms, owner, err := g.resolve(userID, serverID)
	if err != nil {
		return false, err
	}
	if owner {
		return true, nil
	}
	return hasPermission(perms, perm), nil
}

// HasAny reports whether the user holds at least one of the permissions.
func (g *Gate) HasAny(userID, serverID uint, required ...Permission) (bool, error) {
	perms, owner, err := g.resolve(userID, serverID)
	if err != nil {
		return false, err
	}
	if owner {
		return true, nil
	}
	for _, p := range required {
		if hasPermission(perms, p) {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether the user holds every one of the permissions.
func (g *Gate) HasAll(userID, serverID uint, required ...Permission) (bool, error) {
	perms, owner, err := g.resolve(userID, serverID)
	if err != nil {
		return false, err
	}
	if owner {
		return true, nil
	}
	for _, p := range required {
		if !hasPermission(perms, p) {
			return false, nil
		}
	}
	return true, nil
}

// ResolvePermissions returns the effective permission list for the user
// on the server. Owners and admins get the full list; subusers get their
// stored set with the wildcard expanded.
func (g *Gate) ResolvePermissions(userID, serverID uint) ([]Permission, error) {
	perms, owner, err := g.resolve(userID, serverID)
	if err != nil {
		return nil, err
	}
	if owner {
		return AllPermissions, nil
	}
	for _, p := range perms {
		if p == All {
			return AllPermissions, nil
		}
	}
	return perms, nil
}

// resolve loads the user and server and returns the subuser permission
// set, or owner=true when no per-permission check is needed. A user with
// no relationship to the server at all gets an empty set, not an error.
func (g *Gate) resolve(userID, serverID uint) ([]Permission, bool, error) {
	var user models.User
	if err := g.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrInvalidParameters
		}
		return nil, false, err
	}

	var server models.Server
	if err := g.db.First(&server, serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrInvalidParameters
		}
		return nil, false, err
	}

	if server.OwnerID == user.ID || user.IsAdmin {
		return nil, true, nil
	}

	var subuser models.Subuser
	err := g.db.Where("user_id = ? AND server_id = ?", user.ID, server.ID).First(&subuser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var raw []string
	if subuser.Permissions != "" {
		if err := json.Unmarshal([]byte(subuser.Permissions), &raw); err != nil {
			// Corrupt stored permissions deny everything rather than
			// failing the request.
			return nil, false, nil
		}
	}
	perms := make([]Permission, len(raw))
	for i, s := range raw {
		perms[i] = Permission(s)
	}
	return perms, false, nil
}

func hasPermission(perms []Permission, want Permission) bool {
	for _, p := range perms {
		if p == All || p == want {
			return true
		}
	}
	return false
}
