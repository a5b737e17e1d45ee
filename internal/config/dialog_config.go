package config

const (
	defaultDialogName        = "GitHub MCP Server"
	defaultDialogDescription = "This is a demo MCP Remote Server using GitHub for authentication."
	defaultDialogLogo        = "https://avatars.githubusercontent.com/u/314135?s=200&v=4"
)

// DialogConfig describes the server shown on the approval dialog.
type DialogConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Logo        string `yaml:"logo" json:"logo"`
}

func (d *DialogConfig) applyDefaults() {
	if d.Name == "" {
		d.Name = defaultDialogName
	}
	if d.Description == "" {
		d.Description = defaultDialogDescription
	}
	if d.Logo == "" {
		d.Logo = defaultDialogLogo
	}
}
