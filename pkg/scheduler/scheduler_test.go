package scheduler

import (
	"strings"
	"testing"

	"github.com/fleetforge/controlplane/pkg/resource"
)

func TestOrderByClauseCluster(t *testing.T) {
	clause, err := orderByClause(Policy{Similarity: resource.SimilarityCluster, Resource: resource.ResourceModeMost})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(clause, "n_similar DESC") {
		t.Errorf("expected n_similar DESC first for Cluster similarity, got %q", clause)
	}
	if strings.Index(clause, "n_similar DESC") > strings.Index(clause, "avail_cpu DESC") {
		t.Errorf("similarity term should sort before resource term: %q", clause)
	}
}

func TestOrderByClauseSpread(t *testing.T) {
	clause, err := orderByClause(Policy{Similarity: resource.SimilaritySpread, Resource: resource.ResourceModeLeast})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(clause, "n_similar ASC") {
		t.Errorf("expected n_similar ASC for Spread similarity, got %q", clause)
	}
	if !strings.Contains(clause, "avail_cpu ASC") {
		t.Errorf("expected ascending resource ordering for LeastResources, got %q", clause)
	}
}

func TestOrderByClauseNoSimilarity(t *testing.T) {
	clause, err := orderByClause(Policy{Resource: resource.ResourceModeMost})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(clause, "n_similar") {
		t.Errorf("expected no similarity term when SimilarityMode is empty, got %q", clause)
	}
}

func TestOrderByClauseRejectsUnknownModes(t *testing.T) {
	if _, err := orderByClause(Policy{Similarity: "Bogus", Resource: resource.ResourceModeMost}); err == nil {
		t.Error("expected error for unrecognized similarity mode")
	}
	if _, err := orderByClause(Policy{Resource: "Bogus"}); err == nil {
		t.Error("expected error for unrecognized resource mode")
	}
}

func TestOrderByClauseDefaultsEmptyResourceMode(t *testing.T) {
	clause, err := orderByClause(Policy{})
	if err != nil {
		t.Fatalf("empty ResourceMode should default rather than error: %v", err)
	}
	if !strings.Contains(clause, "avail_cpu DESC") {
		t.Errorf("expected empty ResourceMode to default to MostResources ordering, got %q", clause)
	}
}
