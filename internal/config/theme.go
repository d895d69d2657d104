package config

import "strings"

// Theme is the colour lookup for the scene, replacing ad-hoc global tables.
type Theme struct {
	Folder      string            `json:"folder" yaml:"folder"`
	File        string            `json:"file" yaml:"file"`
	Highlight   string            `json:"highlight" yaml:"highlight"`
	Connector   string            `json:"connector" yaml:"connector"`
	Correlation string            `json:"correlation" yaml:"correlation"`
	Mime        map[string]string `json:"mime" yaml:"mime"`
	Categories  map[string]string `json:"categories" yaml:"categories"`
	Priorities  map[string]string `json:"priorities" yaml:"priorities"`
}

// DefaultTheme returns the built-in palette.
func DefaultTheme() Theme {
	return Theme{
		Folder:      "#4a6fa5",
		File:        "#9aa5b1",
		Highlight:   "#ffd166",
		Connector:   "#6c757d",
		Correlation: "#ef476f",
		Mime: map[string]string{
			"text":        "#06d6a0",
			"image":       "#f78c6b",
			"application": "#118ab2",
			"audio":       "#c77dff",
			"video":       "#e63946",
		},
		Categories: map[string]string{
			"requirement": "#3a86ff",
			"deliverable": "#2a9d8f",
			"meeting":     "#8338ec",
			"deadline":    "#e76f51",
			"decision":    "#43aa8b",
			"issue":       "#d62828",
		},
		Priorities: map[string]string{
			"low":      "#adb5bd",
			"medium":   "#74c0fc",
			"high":     "#ffa94d",
			"urgent":   "#ff6b6b",
			"critical": "#c92a2a",
		},
	}
}

// FileColor picks a colour from the MIME major type, falling back to File.
func (t Theme) FileColor(mime string) string {
	major, _, _ := strings.Cut(mime, "/")
	if c, ok := t.Mime[major]; ok {
		return c
	}
	return t.File
}

// CategoryColor returns the colour for a milestone category.
func (t Theme) CategoryColor(category string) string {
	if c, ok := t.Categories[category]; ok {
		return c
	}
	return t.File
}

func (t *Theme) fill(def Theme) {
	if t.Folder == "" {
		t.Folder = def.Folder
	}
	if t.File == "" {
		t.File = def.File
	}
	if t.Highlight == "" {
		t.Highlight = def.Highlight
	}
	if t.Connector == "" {
		t.Connector = def.Connector
	}
	if t.Correlation == "" {
		t.Correlation = def.Correlation
	}
	t.Mime = merge(t.Mime, def.Mime)
	t.Categories = merge(t.Categories, def.Categories)
	t.Priorities = merge(t.Priorities, def.Priorities)
}

func merge(m, def map[string]string) map[string]string {
	out := make(map[string]string, len(def)+len(m))
	for k, v := range def {
		out[k] = v
	}
	for k, v := range m {
		out[k] = v
	}
	return out
}
