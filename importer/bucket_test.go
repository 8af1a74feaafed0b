package importer

import "testing"

func TestReconciliationBucket_ClaimsInCreationOrder(t *testing.T) {
	bucket := NewReconciliationBucket([]CreatedItem{
		{ID: 11, Description: "Chair"},
		{ID: 12, Description: "Chair"},
		{ID: 13, Description: "Desk"},
	})

	first, ok := bucket.Claim("Chair")
	if !ok || first != 11 {
		t.Fatalf("expected the oldest chair (11), got (%d, %v)", first, ok)
	}
	second, ok := bucket.Claim("Chair")
	if !ok || second != 12 {
		t.Fatalf("expected the next chair (12), got (%d, %v)", second, ok)
	}
	if _, ok := bucket.Claim("Chair"); ok {
		t.Fatal("chair bucket should be exhausted")
	}

	desk, ok := bucket.Claim("Desk")
	if !ok || desk != 13 {
		t.Fatalf("expected the desk (13), got (%d, %v)", desk, ok)
	}
}

func TestReconciliationBucket_NormalizesDescriptions(t *testing.T) {
	bucket := NewReconciliationBucket([]CreatedItem{
		{ID: 21, Description: "  Standing Desk  "},
	})

	if got := bucket.Remaining("standing desk"); got != 1 {
		t.Fatalf("expected 1 remaining, got %d", got)
	}
	id, ok := bucket.Claim("STANDING DESK")
	if !ok || id != 21 {
		t.Fatalf("case/whitespace variants should hit the same bucket, got (%d, %v)", id, ok)
	}
	if got := bucket.Remaining("Standing Desk"); got != 0 {
		t.Fatalf("expected bucket drained, got %d", got)
	}
}

func TestReconciliationBucket_UnknownDescription(t *testing.T) {
	bucket := NewReconciliationBucket(nil)
	if _, ok := bucket.Claim("Ghost"); ok {
		t.Fatal("expected no claim from an empty bucket")
	}
	if got := bucket.Remaining("Ghost"); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
}
