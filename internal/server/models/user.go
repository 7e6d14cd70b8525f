package models

import "time"

// User is an account row. PasswordHash holds the "$2y$" bcrypt string.
type User struct {
	ID           int64
	Name         string
	Email        string
	Age          int
	PasswordHash string
	CreatedAt    time.Time
}
