// internal/planner/planner_test.go
package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/oracle"
)

// cannedClient returns a fixed reply, or ErrTimeout forever.
type cannedClient struct {
	reply   string
	timeout bool
}

func (c *cannedClient) Generate(context.Context, oracle.Request) (string, error) {
	if c.timeout {
		return "", oracle.ErrTimeout
	}
	return c.reply, nil
}

func plannerWith(client oracle.Client) *Planner {
	policy := oracle.NewPolicy(client, config.OracleConfig{}, zap.NewNop())
	return New(policy, zap.NewNop())
}

func TestDecomposeUsesOraclePlan(t *testing.T) {
	t.Parallel()

	client := &cannedClient{reply: `1. open the web browser
2. go to github.com
3. click the sign in button`}

	steps := plannerWith(client).Decompose(context.Background(), "log into github")
	require.Len(t, steps, 3)
	assert.Equal(t, 0, steps[0].Index)
	assert.Equal(t, "open the web browser", steps[0].Description)
	assert.Equal(t, 2, steps[2].Index)
	assert.Equal(t, "click the sign in button", steps[2].Description)
}

func TestDecomposeRejectsWeakOraclePlan(t *testing.T) {
	t.Parallel()

	t.Run("single step falls back", func(t *testing.T) {
		t.Parallel()
		client := &cannedClient{reply: "1. just do it"}
		steps := plannerWith(client).Decompose(context.Background(), "open chrome")
		// Fallback open-app sequence, not the one-liner.
		require.Len(t, steps, 2)
		assert.Contains(t, steps[0].Description, "chrome")
	})

	t.Run("prose reply falls back", func(t *testing.T) {
		t.Parallel()
		client := &cannedClient{reply: "Sure! I would be happy to help with that task."}
		steps := plannerWith(client).Decompose(context.Background(), "open firefox")
		require.NotEmpty(t, steps)
		assert.Contains(t, steps[0].Description, "firefox")
	})

	t.Run("duplicate lines collapse", func(t *testing.T) {
		t.Parallel()
		client := &cannedClient{reply: "1. press enter\n2. press enter\n3. press enter"}
		steps := plannerWith(client).Decompose(context.Background(), "open chrome")
		// Collapsed to one distinct step, too weak, falls back.
		require.Len(t, steps, 2)
	})
}

func TestDecomposeOracleFailureFallsBack(t *testing.T) {
	t.Parallel()

	client := &cannedClient{timeout: true}
	steps := plannerWith(client).Decompose(context.Background(), "search for golang tutorials")
	require.NotEmpty(t, steps)
	assert.Contains(t, steps[2].Description, "golang tutorials")
}

func TestDecomposeNilPolicy(t *testing.T) {
	t.Parallel()

	p := New(nil, zap.NewNop())
	steps := p.Decompose(context.Background(), "do the thing")
	require.Len(t, steps, 1)
	assert.Equal(t, "do the thing", steps[0].Description)
}

func TestParseNumberedList(t *testing.T) {
	t.Parallel()

	t.Run("mixed markers", func(t *testing.T) {
		t.Parallel()
		steps := parseNumberedList("1) first\n- second\n* third\n• fourth")
		require.Len(t, steps, 4)
		assert.Equal(t, "first", steps[0].Description)
		assert.Equal(t, "fourth", steps[3].Description)
	})

	t.Run("prose and blanks ignored", func(t *testing.T) {
		t.Parallel()
		steps := parseNumberedList("Here is the plan:\n\n1. open app\n\nGood luck!")
		require.Len(t, steps, 1)
		assert.Equal(t, "open app", steps[0].Description)
	})
}

func TestFallbackRules(t *testing.T) {
	t.Parallel()

	f := NewFallback(zap.NewNop())

	t.Run("search sequence", func(t *testing.T) {
		t.Parallel()
		steps := f.Plan("search for weather in oslo")
		require.Len(t, steps, 6)
		assert.Equal(t, "open the web browser", steps[0].Description)
		assert.Contains(t, steps[1].Description, "google.com")
		assert.Contains(t, steps[2].Description, "wait")
		assert.Contains(t, steps[3].Description, "weather")
		assert.Equal(t, "press enter", steps[4].Description)
		assert.Equal(t, "click the first result", steps[5].Description)
	})

	t.Run("search on a named site", func(t *testing.T) {
		t.Parallel()
		steps := f.Plan("search for lo-fi beats on youtube")
		require.Len(t, steps, 6)
		assert.Contains(t, steps[1].Description, "youtube.com")
		assert.Contains(t, steps[3].Description, "lo-fi beats")
	})

	t.Run("open app sequence", func(t *testing.T) {
		t.Parallel()
		steps := f.Plan("open firefox")
		require.Len(t, steps, 2)
		assert.Equal(t, "open the firefox application", steps[0].Description)
	})

	t.Run("open known site routes to visit", func(t *testing.T) {
		t.Parallel()
		steps := f.Plan("open youtube")
		require.Len(t, steps, 3)
		assert.Contains(t, steps[1].Description, "youtube.com")
	})

	t.Run("visit sequence", func(t *testing.T) {
		t.Parallel()
		steps := f.Plan("go to example.org")
		require.Len(t, steps, 3)
		assert.Contains(t, steps[1].Description, "example.org")
	})

	t.Run("typos are fixed", func(t *testing.T) {
		t.Parallel()
		steps := f.Plan("opne chorme")
		require.Len(t, steps, 2)
		assert.Contains(t, steps[0].Description, "chrome")
	})

	t.Run("unmatched instruction becomes one literal step", func(t *testing.T) {
		t.Parallel()
		steps := f.Plan("water the plants")
		require.Len(t, steps, 1)
		assert.Equal(t, "water the plants", steps[0].Description)
	})
}

func TestExtractSearchTerm(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cat videos", ExtractSearchTerm("search for cat videos"))
	assert.Equal(t, "cat videos", ExtractSearchTerm("search cat videos on youtube"))
	assert.Equal(t, "", ExtractSearchTerm("open chrome"))
}
