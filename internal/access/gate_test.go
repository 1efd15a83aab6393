package access

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/uberwacher/internal/domain/motion"
)

// TestGate_EmptyAllowsEveryone checks that an empty list is unrestricted.
func TestGate_EmptyAllowsEveryone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, gate := range []*Gate{NewGate(nil), NewGate([]string{" ", ""}), new(Gate)} {
		require.False(t, gate.Restricted())

		for _, identity := range []motion.Identity{"alice", "bob", ""} {
			require.True(t, gate.Allowed(ctx, identity))
		}
	}
}

// TestGate_Membership checks allowed(identity) holds exactly for listed identities.
func TestGate_Membership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := NewGate([]string{"bob", " carol "})

	require.True(t, gate.Restricted())
	require.Equal(t, 2, gate.Size())
	require.True(t, gate.Allowed(ctx, "bob"))
	require.True(t, gate.Allowed(ctx, "carol"))
	require.False(t, gate.Allowed(ctx, "alice"))
	require.False(t, gate.Allowed(ctx, ""))
	require.False(t, gate.Allowed(ctx, "Bob"))
}

// TestParseAllowList_Inline splits and trims a comma-separated value.
func TestParseAllowList_Inline(t *testing.T) {
	t.Parallel()

	list, err := ParseAllowList("bob, carol,,dave ")
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "carol", "dave"}, list)

	list, err = ParseAllowList("   ")
	require.NoError(t, err)
	require.Nil(t, list)
}

// TestParseAllowList_File reads identities from a newline-delimited file.
func TestParseAllowList_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "whitelist")
	require.NoError(t, os.WriteFile(path, []byte("bob\n\n  carol  \r\ndave\n"), 0o600))

	list, err := ParseAllowList(path)
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "carol", "dave"}, list)
}
