package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchGetCmd_UnknownIDErrors(t *testing.T) {
	cmd := newBatchGetCmd()
	err := cmd.RunE(cmd, []string{"missing-batch"})
	assert.Error(t, err)
}

func TestBatchListCmd_JSONReportsEmptyOnFreshMemoryStorage(t *testing.T) {
	var buf bytes.Buffer
	orig := cmdOut
	cmdOut = &buf
	defer func() { cmdOut = orig }()

	listCmd := newBatchListCmd()
	listCmd.Flags().Bool("json", true, "")
	require.NoError(t, listCmd.RunE(listCmd, nil))
	assert.Contains(t, buf.String(), `"total": 0`)
}

func TestBatchCleanupCmd_ReportsZeroRemovedOnFreshMemoryStorage(t *testing.T) {
	cmd := newBatchCleanupCmd()
	require.NoError(t, cmd.Flags().Set("older-than-days", "30"))
	err := cmd.RunE(cmd, nil)
	assert.NoError(t, err)
}

func TestBatchCancelCmd_UnknownIDErrors(t *testing.T) {
	cmd := newBatchCancelCmd()
	err := cmd.RunE(cmd, []string{"missing-batch"})
	assert.Error(t, err)
}
