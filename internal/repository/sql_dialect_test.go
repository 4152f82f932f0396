package repository

import "testing"

func TestSQLDialectHelpers(t *testing.T) {
	if got := likeOperatorByDialect("postgres"); got != "ILIKE" {
		t.Fatalf("unexpected postgres operator: %s", got)
	}
	if got := likeOperatorByDialect("sqlite"); got != "LIKE" {
		t.Fatalf("unexpected sqlite operator: %s", got)
	}
	if got := dbDialectName(nil); got != "sqlite" {
		t.Fatalf("unexpected default dialect: %s", got)
	}
}
