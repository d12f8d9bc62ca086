package core

// Identity is the verified user behind a connection. It does not change for
// the lifetime of a session.
type Identity struct {
	ID       string
	Username string
}
