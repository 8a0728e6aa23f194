package postgres

import (
	"strings"
	"testing"

	"github.com/acme/outbound-batch-dialer/internal/repository"
)

var (
	_ repository.GroupRepository           = (*GroupRepository)(nil)
	_ repository.GroupStatisticsRepository = (*GroupStatisticsRepository)(nil)
)

func TestGroupContactsQueryOrdersByInsertion(t *testing.T) {
	query := strings.Join(strings.Fields(groupContactsQuery), " ")

	if !strings.Contains(query, "WHERE group_id = $1") {
		t.Fatalf("contacts must be filtered by group: %q", query)
	}
	if !strings.HasSuffix(query, "ORDER BY created_at ASC, id ASC") {
		t.Fatalf("contacts must be ordered oldest first with id tie-break: %q", query)
	}
}

func TestContactRecordToDomain(t *testing.T) {
	rec := contactRecord{Name: "Asha", PhoneNumber: "+15550001"}
	c := rec.toDomain()
	if c.Name != "Asha" || c.PhoneNumber != "+15550001" || c.Email != "" {
		t.Fatalf("unexpected contact %+v", c)
	}
}
