package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2!")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "hunter2!" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := VerifyPassword(hash, "hunter2!"); err != nil {
		t.Fatalf("VerifyPassword() with correct password: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("VerifyPassword() with wrong password = %v, want ErrInvalidCredentials", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{"valid", "Bearer abc123", "abc123", true},
		{"missing prefix", "abc123", "", false},
		{"empty token", "Bearer ", "", false},
		{"empty header", "", "", false},
		{"wrong scheme", "Basic abc123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := BearerToken(tt.header)
			if token != tt.token || ok != tt.ok {
				t.Errorf("BearerToken(%q) = %q, %v; want %q, %v",
					tt.header, token, ok, tt.token, tt.ok)
			}
		})
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	a, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error = %v", err)
	}
	b, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error = %v", err)
	}
	if a == b {
		t.Fatal("tokens must be unique")
	}
	if len(a) < 32 {
		t.Fatalf("token too short: %d", len(a))
	}
}
