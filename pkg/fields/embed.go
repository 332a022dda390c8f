package fields

import (
	"embed"
	"io/fs"
)

//go:embed templates/widgets/*.tpl
var embeddedTemplates embed.FS

// TemplatesFS exposes the built-in widget templates rooted at "widgets/".
func TemplatesFS() fs.FS {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return embeddedTemplates
	}
	return sub
}
