package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueStatsCmd_JSONReportsZeroDepthOnFreshMemoryQueues(t *testing.T) {
	var buf bytes.Buffer
	orig := cmdOut
	cmdOut = &buf
	defer func() { cmdOut = orig }()

	cmd := newQueueStatsCmd()
	cmd.Flags().Bool("json", true, "")
	require.NoError(t, cmd.RunE(cmd, nil))
	assert.Contains(t, buf.String(), "0")
}
