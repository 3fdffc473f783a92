package auth

import (
	"errors"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("CheckPassword() error = %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if NeedsRehash(hash) {
		t.Fatal("bcrypt hash should not need rehash")
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestCheckLegacyPasswords(t *testing.T) {
	cases := []struct {
		name string
		hash string
		ok   bool
	}{
		{name: "sha1", hash: "sha1$abc$de0a408ef519cd62e7379039634152874895c50c", ok: true},
		{name: "md5", hash: "md5$abc$33e7cb694fb6fb2f848af6774d9ff138", ok: true},
		{name: "sha1 wrong digest", hash: "sha1$abc$0000", ok: false},
		{name: "unusable", hash: "!", ok: false},
		{name: "empty", hash: "", ok: false},
		{name: "unknown algorithm", hash: "crypt$abc$xyz", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPassword(tc.hash, "secret")
			if (err == nil) != tc.ok {
				t.Fatalf("CheckPassword(%q) = %v, want ok=%v", tc.hash, err, tc.ok)
			}
		})
	}
	if !NeedsRehash("sha1$abc$de0a408ef519cd62e7379039634152874895c50c") {
		t.Fatal("legacy hash should need rehash")
	}
}
