package auth

// CredentialError reports a credential resolution or key loading failure.
type CredentialError struct {
	// Reason is the human-readable failure description.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return "credential: " + e.Reason + ": " + e.Err.Error()
	}
	return "credential: " + e.Reason
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
