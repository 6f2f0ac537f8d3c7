package service

// Requester identifies who is calling. An empty UserID means a guest.
type Requester struct {
	UserID string
	Admin  bool
}

func (r Requester) IsGuest() bool { return r.UserID == "" }
