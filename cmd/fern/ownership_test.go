package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/ownership"
)

func runOwnership(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"ownership"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestOwnershipCommand(t *testing.T) {
	out, err := runOwnership(t)
	require.NoError(t, err)
	assert.Contains(t, out, "natural key: erp_vendor_id (authoritative: PeopleSoft)")
	assert.Contains(t, out, "FIELD")
	assert.Regexp(t, `website\s+ingestion\s+app-user-edit > Zycus > PeopleSoft > CSV-import`, out)

	out, err = runOwnership(t, "--json")
	require.NoError(t, err)
	var fields []ownership.FieldOwnership
	require.NoError(t, json.Unmarshal([]byte(out), &fields))
	assert.NotEmpty(t, fields)

	_, err = runOwnership(t, "--matrix", "does-not-exist.yaml")
	assert.Error(t, err)
}
