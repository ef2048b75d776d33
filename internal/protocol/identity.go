package protocol

// Identity is the session context announced in the subscribe handshake.
type Identity struct {
	UserID      string `json:"user_id"`
	VenueID     string `json:"venue_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// IsZero reports whether no field is set.
func (i Identity) IsZero() bool {
	return i == Identity{}
}

// Merge returns i with empty fields filled from other.
func (i Identity) Merge(other Identity) Identity {
	if i.UserID == "" {
		i.UserID = other.UserID
	}
	if i.VenueID == "" {
		i.VenueID = other.VenueID
	}
	if i.WorkspaceID == "" {
		i.WorkspaceID = other.WorkspaceID
	}
	if i.Role == "" {
		i.Role = other.Role
	}
	return i
}
