package repository

import (
	"strings"
	"testing"
)

func TestRecordObservationQueryUpserts(t *testing.T) {
	query := strings.ToLower(recordObservationQuery)

	requiredFragments := []string{
		"insert into segment_rule_observations",
		"on conflict (user_id, rule_key)",
		"do update set last_value = excluded.last_value",
	}

	for _, fragment := range requiredFragments {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected observation upsert fragment %q to be present", fragment)
		}
	}
}

func TestFindUserByIDQueryReadsUsersTable(t *testing.T) {
	query := strings.ToLower(findUserByIDQuery)

	if !strings.Contains(query, "from users") || !strings.Contains(query, "where id = $1") {
		t.Fatal("user lookup should read the users table by id")
	}
}

func TestRunResultColumnsMatchCopyOrder(t *testing.T) {
	want := []string{"run_id", "pass", "user_id", "email", "state", "segments", "errors"}
	if len(runResultColumns) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(runResultColumns))
	}
	for i, col := range want {
		if runResultColumns[i] != col {
			t.Fatalf("column %d: expected %s, got %s", i, col, runResultColumns[i])
		}
	}
}

func TestNonNilSlices(t *testing.T) {
	if got := nonNilInts(nil); got == nil || len(got) != 0 {
		t.Fatal("expected empty non-nil int slice")
	}
	if got := nonNilStrings(nil); got == nil || len(got) != 0 {
		t.Fatal("expected empty non-nil string slice")
	}
}

func TestDeleteFinishedRunsBeforeKeepsRunningRuns(t *testing.T) {
	query := strings.ToLower(deleteFinishedRunsBeforeQuery)

	requiredFragments := []string{
		"delete from segment_sync_runs",
		"status <> 'running'",
		"finished_at < $1",
	}

	for _, fragment := range requiredFragments {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected retention fragment %q to be present", fragment)
		}
	}
}

func TestRunQueriesCarryArchiveKey(t *testing.T) {
	if !strings.Contains(finishRunQuery, "archive_key = $9") {
		t.Fatal("finishing a run should store the archive key")
	}
	if !strings.Contains(getRunQuery, "archive_key") {
		t.Fatal("loading a run should read the archive key")
	}
}

func TestObservationQueriesUseRuleKey(t *testing.T) {
	if !strings.Contains(lastObservationQuery, "rule_key = $2") {
		t.Fatal("observations should be looked up by rule key")
	}
}
