package crypto

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_VerifiableRoundTrip(t *testing.T) {
	hash, err := HashPassword("admin-secret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("ожидали bcrypt формат, получили %q", hash)
	}

	if err := VerifyPassword("admin-secret", hash); err != nil {
		t.Errorf("верный пароль не прошёл: %v", err)
	}
	if err := VerifyPassword("wrong", hash); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("неверный пароль: ожидали ErrPasswordMismatch, получили %v", err)
	}
}

func TestHashPassword_RejectsEdgeInputs(t *testing.T) {
	if _, err := HashPassword(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("пустой пароль: ожидали ErrEmptyPassword, получили %v", err)
	}
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordLength+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("длинный пароль: ожидали ErrPasswordTooLong, получили %v", err)
	}
	// Ровно на границе - валидно
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordLength)); err != nil {
		t.Errorf("пароль в %d байт должен хешироваться: %v", MaxPasswordLength, err)
	}
}

func TestHashPassword_SaltMakesHashesDiffer(t *testing.T) {
	h1, _ := HashPassword("password")
	h2, _ := HashPassword("password")
	if h1 == h2 {
		t.Error("два хеша одного пароля не должны совпадать")
	}
}

func TestHashPassword_UsesDefaultCost(t *testing.T) {
	hash, _ := HashPassword("password")
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("bcrypt.Cost: %v", err)
	}
	if cost != DefaultCost {
		t.Errorf("cost: ожидали %d, получили %d", DefaultCost, cost)
	}
}

func TestVerifyPassword_RejectsBadInputs(t *testing.T) {
	hash, _ := HashPassword("password")

	if err := VerifyPassword("", hash); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("пустой пароль: ожидали ErrEmptyPassword, получили %v", err)
	}
	if err := VerifyPassword("password", ""); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("пустой хеш: ожидали ErrInvalidHash, получили %v", err)
	}
	if err := VerifyPassword("password", "not a bcrypt hash"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("битый хеш: ожидали ErrInvalidHash, получили %v", err)
	}
}

func TestCheckPasswordMatch(t *testing.T) {
	hash, _ := HashPassword("password")

	if !CheckPasswordMatch("password", hash) {
		t.Error("верный пароль должен давать true")
	}
	if CheckPasswordMatch("wrong", hash) {
		t.Error("неверный пароль должен давать false")
	}
	if CheckPasswordMatch("password", "") {
		t.Error("пустой хеш должен давать false")
	}
}
