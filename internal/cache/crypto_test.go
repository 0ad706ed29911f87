package cache

import "testing"

func TestAESCBCRoundTrip(t *testing.T) {
	c, err := newAESCBCCipher()
	if err != nil {
		t.Fatalf("newAESCBCCipher: %v", err)
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	sealed, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if string(sealed) == string(plaintext) {
		t.Error("sealed output must not equal the plaintext")
	}

	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Errorf("got %q, want %q", opened, plaintext)
	}
}

func TestAESCBCEmptyPlaintext(t *testing.T) {
	c, err := newAESCBCCipher()
	if err != nil {
		t.Fatalf("newAESCBCCipher: %v", err)
	}
	sealed, err := c.Seal(nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(opened) != 0 {
		t.Errorf("expected empty plaintext round trip, got %q", opened)
	}
}

func TestAESCBCRejectsCorruptedCiphertext(t *testing.T) {
	c, err := newAESCBCCipher()
	if err != nil {
		t.Fatalf("newAESCBCCipher: %v", err)
	}
	sealed, _ := c.Seal([]byte("hello world"))
	sealed = append(sealed, 0x01) // break the block-size alignment
	if _, err := c.Open(sealed); err == nil {
		t.Error("expected an error opening misaligned ciphertext")
	}
}

func TestIdentityCipherIsNoop(t *testing.T) {
	var c identityCipher
	plaintext := []byte("plain")
	sealed, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if string(sealed) != string(plaintext) {
		t.Error("identity cipher must not transform the value")
	}
	opened, _ := c.Open(sealed)
	if string(opened) != string(plaintext) {
		t.Error("identity cipher Open must return the input unchanged")
	}
}
