package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFile_Parse(t *testing.T) {
	const manifest = `
providers:
  - name: corp-sso
    issuer: https://sso.example.com
    client_id: llmgate
    client_secret: hunter2
    scopes: [openid, profile, groups]
    grants:
      - group_claim: groups
        group_value: ml-team
        category: chat

categories:
  - name: chat
    preferred_model: llama3-70b

models:
  - name: llama3-70b
    category: chat
  - name: codegen-34b

admins:
  - provider: corp-sso
    subject: u-123
    email: admin@example.com
    display_name: Admin
`
	var f File
	require.NoError(t, yaml.Unmarshal([]byte(manifest), &f))

	require.Len(t, f.Providers, 1)
	assert.Equal(t, "corp-sso", f.Providers[0].Name)
	assert.Equal(t, []string{"openid", "profile", "groups"}, f.Providers[0].Scopes)
	require.Len(t, f.Providers[0].Grants, 1)
	assert.Equal(t, "chat", f.Providers[0].Grants[0].Category)

	require.Len(t, f.Categories, 1)
	assert.Equal(t, "llama3-70b", f.Categories[0].PreferredModel)

	require.Len(t, f.Models, 2)
	assert.Empty(t, f.Models[1].Category)

	require.Len(t, f.Admins, 1)
	assert.Equal(t, "u-123", f.Admins[0].Subject)
}
