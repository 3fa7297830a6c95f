package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
)

type stubIdentities struct {
	records []contracts.IdentityRecord
	err     error
	market  string
}

func (s *stubIdentities) ListIdentities(ctx context.Context, sportKey, market string) ([]contracts.IdentityRecord, error) {
	s.market = market
	return s.records, s.err
}

type stubRanked struct {
	ids   []string
	err   error
	limit int64
}

func (s *stubRanked) Ranked(ctx context.Context, sportKey string, limit int64) ([]string, error) {
	s.limit = limit
	return s.ids, s.err
}

func records() []contracts.IdentityRecord {
	return []contracts.IdentityRecord{
		{StorageID: "A", EventID: "E1", EntityID: "", Market: "spreads", Line: -3.5},
		{StorageID: "B", EventID: "E1", EntityID: "game", Market: "spreads", Line: -3.5},
		{StorageID: "C", EventID: "E1", EntityID: "game", Market: "spreads", Line: -4.5},
		{StorageID: "D", EventID: "E1", EntityID: "p-23", Market: "player_points", Line: 24.5},
		{StorageID: "E", EventID: "E2", EntityID: "game", Market: "spreads", Line: -3.5},
	}
}

func TestRunAudit_PrintsGroupsAndSummary(t *testing.T) {
	var out bytes.Buffer
	ids := &stubIdentities{records: records()}

	err := runAudit(context.Background(), auditOptions{Sport: "basketball_nba", Market: "spreads"}, auditDeps{Identities: ids}, &out)
	require.NoError(t, err)

	assert.Equal(t, "spreads", ids.market)
	text := out.String()
	assert.Contains(t, text, "Duplicate audit: basketball_nba / spreads")
	assert.Contains(t, text, "E1|game|spreads|-3.5")
	assert.Contains(t, text, "A, B")
	assert.Contains(t, text, "Logical rows:      4")
	assert.Contains(t, text, "Storage ids:       5")
	assert.Contains(t, text, "Efficiency:        80.0%")
	assert.NotContains(t, text, "Ranked entries")
}

func TestRunAudit_NoDuplicates(t *testing.T) {
	var out bytes.Buffer
	err := runAudit(context.Background(), auditOptions{Sport: "basketball_nba"}, auditDeps{Identities: &stubIdentities{}}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "No duplicate identities found.")
	assert.Contains(t, out.String(), "Efficiency:        100.0%")
}

func TestRunAudit_CrossCheck(t *testing.T) {
	var out bytes.Buffer
	ranked := &stubRanked{ids: []string{"D", "A", "C", "B"}}

	opts := auditOptions{Sport: "basketball_nba", CrossCheck: true, Limit: 50}
	err := runAudit(context.Background(), opts, auditDeps{Identities: &stubIdentities{records: records()}, Ranked: ranked}, &out)
	require.NoError(t, err)

	assert.EqualValues(t, 50, ranked.limit)
	assert.Contains(t, out.String(), "Ranked entries checked: 4")
	assert.Contains(t, out.String(), "Visible duplicates: 1")
	assert.Contains(t, out.String(), "ids=A,B  ranks=#2,#4")
}

func TestRunAudit_JSON(t *testing.T) {
	var out bytes.Buffer
	opts := auditOptions{Sport: "basketball_nba", JSON: true}
	require.NoError(t, runAudit(context.Background(), opts, auditDeps{Identities: &stubIdentities{records: records()}}, &out))

	var decoded auditOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "basketball_nba", decoded.Sport)
	require.Len(t, decoded.Report.Groups, 1)
	assert.Equal(t, 1, decoded.Report.Wasted)
}

func TestRunAudit_TransportErrors(t *testing.T) {
	var out bytes.Buffer

	err := runAudit(context.Background(), auditOptions{Sport: "basketball_nba"},
		auditDeps{Identities: &stubIdentities{err: errors.New("connection reset")}}, &out)
	assert.ErrorContains(t, err, "list identities")

	err = runAudit(context.Background(), auditOptions{Sport: "basketball_nba", CrossCheck: true},
		auditDeps{Identities: &stubIdentities{records: records()}, Ranked: &stubRanked{err: errors.New("redis down")}}, &out)
	assert.ErrorContains(t, err, "read ranked index")
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"sport", "market", "cross-check", "limit", "json", "dsn", "redis", "timeout"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	ok := &cobra.Command{Use: "ok", RunE: func(cmd *cobra.Command, args []string) error { return nil }}
	ok.SetArgs([]string{})
	assert.Equal(t, 0, run(ok))

	var sawContext bool
	failing := &cobra.Command{
		Use:           "failing",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sawContext = cmd.Context() != nil
			return errors.New("connect to sheet store: refused")
		},
	}
	failing.SetArgs([]string{})
	assert.Equal(t, 1, run(failing))
	assert.True(t, sawContext)
}
