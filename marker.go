package encxorm

// Marker is appended to every ciphertext written by the processor. It tells
// an encrypted value apart from plaintext stored in the same column.
//
// The bundled encryptors emit base64url or "vault:" prefixed strings, neither
// of which can contain '<' or '>'.
const Marker = "<ENC>"

// IsMarked reports whether value ends with Marker. Only the trailing
// len(Marker) bytes are compared.
func IsMarked(value string) bool {
	if len(value) < len(Marker) {
		return false
	}
	return value[len(value)-len(Marker):] == Marker
}

// Strip removes the trailing marker. It returns value unchanged when the
// marker is absent.
func Strip(value string) string {
	if !IsMarked(value) {
		return value
	}
	return value[:len(value)-len(Marker)]
}

// Apply appends the marker to ciphertext.
func Apply(ciphertext string) string {
	return ciphertext + Marker
}
