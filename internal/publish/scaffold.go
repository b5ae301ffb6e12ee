package publish

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"io/fs"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/datapub/internal/datapackage"
	"git.home.luguber.info/inful/datapub/internal/dataset"
)

//go:embed all:assets
var assetFS embed.FS

// staticAssets are pushed verbatim into every new repository. index.html is
// rendered separately because it carries the dataset description.
var staticAssets = map[string]string{
	"css/style.css":             "assets/css/style.css",
	"_layouts/default.html":     "assets/_layouts/default.html",
	"_layouts/resource.html":    "assets/_layouts/resource.html",
	"_layouts/api-item.html":    "assets/_layouts/api-item.html",
	"_layouts/api-list.html":    "assets/_layouts/api-list.html",
	"_includes/data_table.html": "assets/_includes/data_table.html",
	"js/render-csv.js":          "assets/js/render-csv.js",
}

var indexTmpl = template.Must(template.New("index").Parse(mustAsset("assets/index.html")))

func mustAsset(name string) string {
	b, err := fs.ReadFile(assetFS, name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

type indexFile struct {
	Title    string
	ViewPath string
}

type indexData struct {
	Title           string
	DescriptionHTML string
	Files           []indexFile
	LicenseTitle    string
	LicenseURL      string
}

// ScaffoldFiles returns the site skeleton for a dataset, keyed by repository
// path. The description is treated as markdown.
func ScaffoldFiles(ds *dataset.Dataset) (map[string][]byte, error) {
	files := make(map[string][]byte, len(staticAssets)+1)
	for remote, local := range staticAssets {
		b, err := fs.ReadFile(assetFS, local)
		if err != nil {
			return nil, fmt.Errorf("reading scaffold asset %s: %w", local, err)
		}
		files[remote] = b
	}

	index, err := renderIndex(ds)
	if err != nil {
		return nil, err
	}
	files["index.html"] = index
	return files, nil
}

func renderIndex(ds *dataset.Dataset) ([]byte, error) {
	var desc bytes.Buffer
	if ds.Description != "" {
		if err := goldmark.Convert([]byte(ds.Description), &desc); err != nil {
			return nil, fmt.Errorf("rendering dataset description: %w", err)
		}
	}

	data := indexData{
		Title:           html.EscapeString(ds.Name),
		DescriptionHTML: desc.String(),
	}
	for _, f := range ds.Files {
		// The view page is a Jekyll source; link to the page it renders to.
		data.Files = append(data.Files, indexFile{
			Title:    html.EscapeString(f.Title),
			ViewPath: strings.TrimSuffix(f.ViewFilename(), ".md") + ".html",
		})
	}
	if ds.License != "" {
		lic := datapackage.LicenseDetails(ds.License)
		data.LicenseTitle = html.EscapeString(lic.Title)
		data.LicenseURL = lic.URL
	}

	var out bytes.Buffer
	if err := indexTmpl.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("rendering index page: %w", err)
	}
	return out.Bytes(), nil
}
