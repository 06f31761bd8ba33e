package domain

// User represents a bot user resolved against the allow-list
type User struct {
	ID         int64
	Authorized bool
}
