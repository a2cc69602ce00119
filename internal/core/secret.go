package core

// Secret is a string type that redacts itself whenever it is formatted,
// logged, or marshaled, so that API keys/secrets never reach a log line or
// error message in the clear. Encryption at rest is an external concern
// (spec §1); this type only guards against accidental in-process leakage.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// Reveal returns the underlying value. Callers must use it only at the
// boundary where the exchange session is actually authenticated.
func (s Secret) Reveal() string {
	return string(s)
}
