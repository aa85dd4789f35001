package config

// SecretStringValue replaces secret values in any output.
const SecretStringValue = "<secret>"

// SecretString is used for configuration values which should not be visible
// in logs, configuration dumps and debug reports (authorization headers,
// cookies).
type SecretString string

// String implements fmt.Stringer so secrets do not leak through logging.
func (s SecretString) String() string {
	if len(s) == 0 {
		return ""
	}
	return SecretStringValue
}

// MarshalJSON marshals SecretString to JSON making sure that actual value is not visible.
func (s SecretString) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte("\"" + SecretStringValue + "\""), nil
}

// MarshalYAML marshals SecretString to YAML making sure that actual value is not visible.
func (s SecretString) MarshalYAML() (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return SecretStringValue, nil
}

// Reveal returns actual value.
func (s SecretString) Reveal() string {
	return string(s)
}

// RevealHeaders returns headers with actual values.
func RevealHeaders(headers map[string]SecretString) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v.Reveal()
	}
	return out
}
