package hipaa

import (
	"strings"
	"testing"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNewPHIEncryptor_KeyLength(t *testing.T) {
	if _, err := NewPHIEncryptor([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
	if _, err := NewPHIEncryptor(testKey()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, _ := NewPHIEncryptor(testKey())
	plaintext := "Patient has a history of hypertension"

	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if ciphertext == plaintext {
		t.Fatal("ciphertext must differ from plaintext")
	}

	got, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != plaintext {
		t.Errorf("round trip mismatch: got %q", got)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	enc, _ := NewPHIEncryptor(testKey())
	c1, _ := enc.Encrypt("same value")
	c2, _ := enc.Encrypt("same value")
	if c1 == c2 {
		t.Error("each encryption must use a fresh nonce")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc1, _ := NewPHIEncryptor(testKey())
	enc2, _ := NewPHIEncryptor([]byte("fedcba9876543210fedcba9876543210"))

	ciphertext, _ := enc1.Encrypt("secret")
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Fatal("decryption with the wrong key must fail")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	enc, _ := NewPHIEncryptor(testKey())
	ciphertext, _ := enc.Encrypt("secret")

	tampered := strings.Replace(ciphertext, string(ciphertext[10]), "A", 1)
	if tampered == ciphertext {
		tampered = "B" + ciphertext[1:]
	}
	if _, err := enc.Decrypt(tampered); err == nil {
		t.Fatal("tampered ciphertext must fail authentication")
	}
}

func TestDecrypt_InvalidInput(t *testing.T) {
	enc, _ := NewPHIEncryptor(testKey())
	if _, err := enc.Decrypt("not base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := enc.Decrypt("c2hvcnQ="); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}
