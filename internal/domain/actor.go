package domain

// Actor is the verified caller on whose behalf a storage call runs. The
// token is forwarded to the hosted store so its row policies apply to this
// caller; it is passed explicitly on every call and never cached on a
// shared client.
type Actor struct {
	UserID string
	Token  string
}
