package core

// Cipher performs authenticated symmetric encryption of individual field
// values. Implementations hold only the active key reference and are safe to
// share across concurrent callers.
//
// Encrypt must be non-deterministic: encrypting the same plaintext twice
// yields two different ciphertexts. Decrypt must fail with ErrDecryption on
// truncated input, tag mismatch, or a key that does not match the one used
// at encryption time; it never returns garbage plaintext.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)

	// EncryptString and DecryptString carry ciphertext as base64 for TEXT
	// column storage.
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}
