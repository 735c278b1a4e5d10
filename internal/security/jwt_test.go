package security

import (
	"errors"
	"testing"
	"time"
)

func TestActorTokenRoundTrip(t *testing.T) {
	token, errGenerate := GenerateActorToken("secret", "op-1", "Booth 3", false, time.Hour)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}

	claims, errParse := ParseActorToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.ActorID != "op-1" || claims.Name != "Booth 3" || claims.Staff {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestActorTokenCarriesStaffFlag(t *testing.T) {
	token, errGenerate := GenerateActorToken("secret", "staff-1", "Warden", true, time.Hour)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}

	claims, errParse := ParseActorToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if !claims.Staff {
		t.Fatal("staff flag lost in round trip")
	}
}

func TestParseActorTokenRejectsWrongSecret(t *testing.T) {
	token, errGenerate := GenerateActorToken("secret", "op-1", "", false, time.Hour)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}

	if _, errParse := ParseActorToken("other", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseActorTokenRejectsExpired(t *testing.T) {
	token, errGenerate := GenerateActorToken("secret", "op-1", "", false, -time.Minute)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}

	if _, errParse := ParseActorToken("secret", token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestParseActorTokenRejectsGarbage(t *testing.T) {
	if _, errParse := ParseActorToken("secret", "not.a.token"); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}
