package generator

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/forgedocs/wikiforge/wiki"
)

// PageTemplate is one documentation template the template pipeline renders
// into an AI prompt. Type doubles as the page ID prefix.
type PageTemplate struct {
	Type   string
	Title  string
	Order  int
	Prompt *template.Template
}

// TemplateData is the payload a PageTemplate prompt is rendered with
type TemplateData struct {
	ProjectName string
	Description string
	Language    string
}

// TemplateSource supplies the templates for a given language
type TemplateSource interface {
	Templates(language string) ([]*PageTemplate, error)
}

// repoPageSpec defines one page of the repository pipeline
type repoPageSpec struct {
	Type    wiki.PageType
	ZhTitle string
	EnTitle string
	Order   int
}

// repoPageSpecs is the fixed page plan for repository documentation
var repoPageSpecs = []repoPageSpec{
	{wiki.PageTypeOverview, "项目概述", "Project Overview", 1},
	{wiki.PageTypeUsage, "快速开始", "Getting Started", 2},
	{wiki.PageTypeSetup, "安装指南", "Installation Guide", 3},
	{wiki.PageTypeAPI, "API参考", "API Reference", 4},
	{wiki.PageTypeArchitecture, "架构设计", "Architecture", 5},
}

// localizedTitle picks the title matching the target language
func localizedTitle(zh, en, language string) string {
	if language == "zh" {
		return zh
	}
	return en
}

// pageID builds a repository page identifier from its title and language
func pageID(title, language string) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(strings.ReplaceAll(title, " ", "-")), language)
}

// pageTypeFor maps a template type string onto the page taxonomy
func pageTypeFor(templateType string) wiki.PageType {
	switch templateType {
	case "overview":
		return wiki.PageTypeOverview
	case "architecture":
		return wiki.PageTypeArchitecture
	case "setup", "installation":
		return wiki.PageTypeSetup
	case "api", "reference":
		return wiki.PageTypeAPI
	default:
		return wiki.PageTypeUsage
	}
}

// pageTypeNames gives the per-language noun used in prompts
var pageTypeNames = map[wiki.PageType]struct{ zh, en string }{
	wiki.PageTypeOverview:     {"项目概述", "project overview"},
	wiki.PageTypeUsage:        {"使用指南", "user guide"},
	wiki.PageTypeSetup:        {"安装指南", "installation guide"},
	wiki.PageTypeAPI:          {"API参考", "API reference"},
	wiki.PageTypeArchitecture: {"架构设计", "architecture design"},
}

func pageTypeName(t wiki.PageType, language string) string {
	names, ok := pageTypeNames[t]
	if !ok {
		return localizedTitle("技术文档", "technical documentation", language)
	}
	return localizedTitle(names.zh, names.en, language)
}

// buildRepoPrompt composes the generation prompt for one repository page
func buildRepoPrompt(info *RepositoryInfo, pageType wiki.PageType, title, language string) string {
	var b strings.Builder

	if language == "zh" {
		b.WriteString("你是一个专业的技术文档编写专家。请为以下项目生成高质量的中文技术文档。\n\n")
	} else {
		b.WriteString("You are a professional technical documentation expert. Please generate high-quality English technical documentation for the following project.\n\n")
	}

	b.WriteString("Project Information:\n")
	b.WriteString(fmt.Sprintf("- Name: %s\n", info.Name))
	b.WriteString(fmt.Sprintf("- URL: %s\n", info.URL))
	b.WriteString(fmt.Sprintf("- Language: %s\n", info.Language))
	b.WriteString(fmt.Sprintf("- Framework: %s\n", info.Framework))
	b.WriteString(fmt.Sprintf("- Description: %s\n\n", info.Description))

	if language == "zh" {
		b.WriteString(fmt.Sprintf("请生成一个详细的%s文档，标题为 %q。\n", pageTypeName(pageType, language), title))
		b.WriteString("\n请使用Markdown格式，包含适当的标题、代码块、列表等格式。确保内容专业、准确、易于理解。")
	} else {
		b.WriteString(fmt.Sprintf("Please generate a detailed %s document titled %q.\n", pageTypeName(pageType, language), title))
		b.WriteString("\nPlease use Markdown format with appropriate headings, code blocks, lists, etc. Ensure the content is professional, accurate, and easy to understand.")
	}

	return b.String()
}

// builtinTemplates is the default TemplateSource used when none is injected.
// It renders the same five-page plan as the repository pipeline, driven by
// text templates instead of repository analysis.
type builtinTemplates struct{}

const builtinPromptText = `{{if eq .Language "zh"}}你是一个专业的技术文档编写专家。请为项目 {{.ProjectName}} 生成一份中文的{{.Title}}文档。

项目描述：{{.Description}}

请使用Markdown格式，包含适当的标题、代码块和列表。{{else}}You are a professional technical documentation expert. Please write the {{.Title}} document for the project {{.ProjectName}} in English.

Project description: {{.Description}}

Please use Markdown format with appropriate headings, code blocks and lists.{{end}}`

// builtinPrompt carries the page title alongside the shared template data
type builtinPrompt struct {
	TemplateData
	Title string
}

var builtinPromptTmpl = template.Must(template.New("builtin").Parse(builtinPromptText))

func (builtinTemplates) Templates(language string) ([]*PageTemplate, error) {
	out := make([]*PageTemplate, 0, len(repoPageSpecs))
	for _, spec := range repoPageSpecs {
		out = append(out, &PageTemplate{
			Type:   string(spec.Type),
			Title:  localizedTitle(spec.ZhTitle, spec.EnTitle, language),
			Order:  spec.Order,
			Prompt: builtinPromptTmpl,
		})
	}
	return out, nil
}

// renderTemplatePrompt executes a template prompt against the wiki metadata
func renderTemplatePrompt(tmpl *PageTemplate, w *wiki.Wiki, language string) (string, error) {
	var b strings.Builder
	data := builtinPrompt{
		TemplateData: TemplateData{
			ProjectName: w.Title,
			Description: w.Description,
			Language:    language,
		},
		Title: tmpl.Title,
	}
	if err := tmpl.Prompt.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
