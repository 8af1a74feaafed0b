package utils

import (
	"context"
	"testing"
)

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = SetBusinessIdInContext(ctx, "biz-1")
	ctx = SetUserIdInContext(ctx, 42)
	ctx = SetUserNameInContext(ctx, "dana")
	ctx = SetCorrelationIdInContext(ctx, "corr-7")

	if v, ok := GetBusinessIdFromContext(ctx); !ok || v != "biz-1" {
		t.Fatalf("business id: got (%q, %v)", v, ok)
	}
	if v, ok := GetUserIdFromContext(ctx); !ok || v != 42 {
		t.Fatalf("user id: got (%d, %v)", v, ok)
	}
	if v, ok := GetUserNameFromContext(ctx); !ok || v != "dana" {
		t.Fatalf("user name: got (%q, %v)", v, ok)
	}
	if v, ok := GetCorrelationIdFromContext(ctx); !ok || v != "corr-7" {
		t.Fatalf("correlation id: got (%q, %v)", v, ok)
	}
}

func TestContextHelpersAbsentValues(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserIdFromContext(ctx); ok {
		t.Fatal("expected no user id on an empty context")
	}
	if _, ok := GetBusinessIdFromContext(ctx); ok {
		t.Fatal("expected no business id on an empty context")
	}
}
