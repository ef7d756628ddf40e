package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LUMI_STORAGE_BACKEND", "sqlite")
	t.Setenv("LUMI_STORAGE_PATH", filepath.Join(t.TempDir(), "state.db"))
	for _, key := range []string{"LUMI_API_BASE_URL", "ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "LOG_FILE", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	cmd := newRootCmd(a)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, a.close())
	return out.String(), err
}

func TestConsentCommands(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "", "consent", "show", "-o", "json")
	require.NoError(t, err)
	var view consentView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, consentView{Profile: "default"}, view)

	_, err = execute(t, "", "consent", "grant")
	require.NoError(t, err)

	out, err = execute(t, "", "consent", "show")
	require.NoError(t, err)
	assert.Equal(t, "profile default: consented=true asked=true\n", out)

	out, err = execute(t, "", "consent", "show", "--profile", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "consented=false")
}

func TestChatRecordsMood(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "consent", "grant")
	require.NoError(t, err)

	out, err := execute(t, "I am so happy today\n/quit\nnever sent\n", "chat")
	require.NoError(t, err)
	assert.Equal(t, "lumi [joy 0.80]: I hear you. It sounds happy. Want to talk more about it?\n", out)

	out, err = execute(t, "", "mood", "show", "-o", "yaml")
	require.NoError(t, err)
	var snap struct {
		Consented bool `yaml:"consented"`
		History   []struct {
			Label string  `yaml:"label"`
			Score float64 `yaml:"score"`
		} `yaml:"history"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &snap))
	assert.True(t, snap.Consented)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "joy", snap.History[0].Label)

	out, err = execute(t, "", "insights", "-o", "json")
	require.NoError(t, err)
	var report struct {
		Source  string `json:"source"`
		Summary struct {
			Total  int    `json:"total"`
			Latest string `json:"latest"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "local", report.Source)
	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, "joy", report.Summary.Latest)

	_, err = execute(t, "", "mood", "clear")
	require.NoError(t, err)
	out, err = execute(t, "", "mood", "show")
	require.NoError(t, err)
	assert.Equal(t, "no mood entries\n", out)
}

func TestChatYAMLMatchesJSON(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "consent", "grant")
	require.NoError(t, err)

	out, err := execute(t, "I am so happy today\n", "chat", "-o", "json")
	require.NoError(t, err)
	var asJSON map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &asJSON))

	out, err = execute(t, "I am so happy today\n", "chat", "-o", "yaml")
	require.NoError(t, err)
	var asYAML map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &asYAML))

	keys := func(m map[string]any) []string {
		var ks []string
		for k := range m {
			ks = append(ks, k)
		}
		return ks
	}
	assert.ElementsMatch(t, keys(asJSON), keys(asYAML))
	assert.Contains(t, asYAML, "messageId")

	feeling, ok := asYAML["emotion"].(map[string]any)
	require.True(t, ok, "emotion: %#v", asYAML["emotion"])
	assert.Equal(t, "joy", feeling["label"])
	assert.NotContains(t, feeling, "source")
	assert.ElementsMatch(t, []string{"label", "score"}, keys(feeling))
}

func TestChatWithoutConsentHidesMood(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "hello\n", "chat")
	require.NoError(t, err)
	assert.Equal(t, "lumi [-]: I hear you. It sounds calm. Want to talk more about it?\n", out)
}

func TestChatStopsOnCrisis(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "I want to end it all\nhello\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "988")
	assert.NotContains(t, out, "lumi [")
}

func TestUnknownOutputFormat(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "consent", "show", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
