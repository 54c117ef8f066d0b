// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # Roles

// UserRole represents the authorization level carried by a bearer token.
type UserRole string

const (
	// May trigger story order recalculation and every ingestion route.
	RoleAdmin UserRole = "admin"

	// May publish ingestion events.
	RoleIngestor UserRole = "ingestor"

	// Default role; reads are public so this grants nothing extra today.
	RoleReader UserRole = "reader"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

func (r UserRole) level() int {
	switch r {
	case RoleAdmin:
		return 30
	case RoleIngestor:
		return 20
	case RoleReader:
		return 10
	default:
		return 0
	}
}
