package domain

// SessionToken is the payload carried by the signed auth cookie. A token is
// identified by the (UserID, IssuedAt) pair.
type SessionToken struct {
	UserID      string       `json:"id"`
	Permissions []Permission `json:"permissions"`
	IssuedAt    int64        `json:"iat"`
}

// AuthResult holds exactly one of User or Err.
type AuthResult struct {
	User *SessionToken
	Err  error
}

func (r AuthResult) Authenticated() bool {
	return r.Err == nil && r.User != nil
}
