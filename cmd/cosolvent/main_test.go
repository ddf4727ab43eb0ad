package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosolvent/cosolvent/internal/config"
)

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := rootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "worker", "publish", "approve", "reindex", "stdio", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "cosolvent version dev")
}

func TestMessageBody(t *testing.T) {
	body, err := messageBody(strings.NewReader("ignored"), []string{`{"asset_id":"a1"}`})
	require.NoError(t, err)
	assert.Equal(t, `{"asset_id":"a1"}`, string(body))

	body, err = messageBody(strings.NewReader(`{"user_id":"u1"}`), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, `{"user_id":"u1"}`, string(body))

	body, err = messageBody(strings.NewReader(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(body))
}

func TestApplyServeOverrides(t *testing.T) {
	cfg := applyServeOverrides(config.NewAppConfig(), "127.0.0.1", 9090)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())

	cfg = applyServeOverrides(config.NewAppConfig(), "", 0)
	assert.Equal(t, config.NewAppConfig().Addr(), cfg.Addr())
}

func TestPublishCmd_Integration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("DB_URL", "sqlite:///"+dir+"/cli.db")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--env-file", dir + "/missing.env", "publish", "asset_upload", `{"asset_id":"a1","user_id":"u1"}`})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "published to asset_upload")

	cmd = rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--env-file", dir + "/missing.env", "publish", "asset_upload", `{"user_id":"u1"}`})
	assert.Error(t, cmd.Execute())
}
