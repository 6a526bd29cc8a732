package nodelock

// EndUser holds optional metadata about the license holder. It is a value
// type: a License keeps its own copy.
type EndUser struct {
	FullName     string
	Organization string
	Address      string
	PhoneNumber  string
	EMailAddress string
	Notes        string
}

// DisplayName returns the organization when set, otherwise the full name.
func (u EndUser) DisplayName() string {
	if u.Organization != "" {
		return u.Organization
	}
	return u.FullName
}
