package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evmts/smithers/internal/permission"
)

// frontmatterRe extracts the YAML block between the leading "---" fences of
// a persona profile file; the same pattern, used with ReplaceAllString,
// strips it to leave the prompt body. Grounded on the pack's specialist-
// loader convention of a YAML-fenced metadata block followed by a markdown
// system-prompt body.
var frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)

// fileMeta mirrors the YAML frontmatter schema for a persona profile file.
type fileMeta struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Mode        string          `yaml:"mode"`
	Model       string          `yaml:"model"`
	Temperature float64         `yaml:"temperature"`
	TopP        float64         `yaml:"topP"`
	Color       string          `yaml:"color"`
	Tools       map[string]bool `yaml:"tools"`
	Permission  *filePermission `yaml:"permission"`
}

type filePermission struct {
	Edit        permission.PermissionAction            `yaml:"edit"`
	Bash        map[string]permission.PermissionAction `yaml:"bash"`
	WebFetch    permission.PermissionAction            `yaml:"webfetch"`
	ExternalDir permission.PermissionAction            `yaml:"external_directory"`
	DoomLoop    permission.PermissionAction            `yaml:"doom_loop"`
}

// LoadFromDir scans dir for "*.md" persona profile files (YAML frontmatter
// describing mode/model/tools/permission, followed by the system prompt
// body) and registers each as a custom Persona, overriding any built-in of
// the same name. A missing directory is not an error — a project simply
// has no custom personas; any other read failure is returned.
func (r *Registry) LoadFromDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read persona dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		p, err := loadPersonaFile(path)
		if err != nil {
			return fmt.Errorf("load persona %s: %w", entry.Name(), err)
		}
		r.Register(p)
	}

	return nil
}

func loadPersonaFile(path string) (*Persona, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), ".md")
	body := string(content)

	p := &Persona{
		Name:    name,
		Mode:    ModePrimary,
		BuiltIn: false,
		Tools:   make(map[string]bool),
	}

	if match := frontmatterRe.FindStringSubmatch(body); len(match) > 1 {
		var meta fileMeta
		if err := yaml.Unmarshal([]byte(match[1]), &meta); err != nil {
			return nil, fmt.Errorf("parse frontmatter: %w", err)
		}
		applyFileMeta(p, &meta)
		body = frontmatterRe.ReplaceAllString(body, "")
	}

	p.Prompt = strings.TrimSpace(body)
	return p, nil
}

func applyFileMeta(p *Persona, meta *fileMeta) {
	if meta.Name != "" {
		p.Name = meta.Name
	}
	p.Description = meta.Description
	if meta.Mode != "" {
		p.Mode = Mode(meta.Mode)
	}
	p.Temperature = meta.Temperature
	p.TopP = meta.TopP
	p.Color = meta.Color

	if meta.Model != "" {
		parts := strings.SplitN(meta.Model, "/", 2)
		if len(parts) == 2 {
			p.Model = &ModelRef{ProviderID: parts[0], ModelID: parts[1]}
		} else {
			p.Model = &ModelRef{ModelID: parts[0]}
		}
	}

	if meta.Tools != nil {
		p.Tools = meta.Tools
	}

	if meta.Permission != nil {
		p.Permission = PersonaPermission{
			Edit:        meta.Permission.Edit,
			Bash:        meta.Permission.Bash,
			WebFetch:    meta.Permission.WebFetch,
			ExternalDir: meta.Permission.ExternalDir,
			DoomLoop:    meta.Permission.DoomLoop,
		}
	}
}
