package seed

// File is the declarative bootstrap manifest applied at startup with -seed.
// Entries already present are left untouched, so the same file can be applied
// on every deploy.
type File struct {
	Providers  []ProviderDef `yaml:"providers"`
	Categories []CategoryDef `yaml:"categories"`
	Models     []ModelDef    `yaml:"models"`
	Admins     []AdminDef    `yaml:"admins"`
}

type ProviderDef struct {
	Name         string     `yaml:"name"`
	Issuer       string     `yaml:"issuer"`
	ClientID     string     `yaml:"client_id"`
	ClientSecret string     `yaml:"client_secret"`
	Scopes       []string   `yaml:"scopes"`
	PKCE         *bool      `yaml:"pkce"`
	Grants       []GrantDef `yaml:"grants"`
}

type GrantDef struct {
	GroupClaim string `yaml:"group_claim"`
	GroupValue string `yaml:"group_value"`
	Category   string `yaml:"category"`
}

type CategoryDef struct {
	Name           string `yaml:"name"`
	PreferredModel string `yaml:"preferred_model"`
}

type ModelDef struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// AdminDef marks a user as admin ahead of their first login. The user row is
// provisioned here so the flag survives the login upsert.
type AdminDef struct {
	Provider    string `yaml:"provider"`
	Subject     string `yaml:"subject"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
}
