package user

import "time"

type User struct {
	ID         int64
	Name       string
	Country    string
	Restricted bool
	CreatedAt  time.Time
}
