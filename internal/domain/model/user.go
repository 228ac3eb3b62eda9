package model

import "time"

const PremiumRoleName = "Premium"

type User struct {
	ID        int64
	Email     string
	FullName  string
	RoleID    *int64
	CreatedAt time.Time
}

type Role struct {
	ID   int64
	Name string
}
