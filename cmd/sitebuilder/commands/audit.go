package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/seo"
)

// AuditCmd inspects the metadata of already built pages.
type AuditCmd struct {
	Dir  string `name:"dir" help:"Directory to audit (defaults to output.directory)"`
	JSON bool   `name:"json" help:"Print the audit as JSON"`
}

// PageAudit is the audit result for one page.
type PageAudit struct {
	Page    string   `json:"page"`
	Meta    seo.Meta `json:"meta"`
	Noindex bool     `json:"noindex,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

func (a *AuditCmd) Run(g *Global, root *CLI) error {
	dir := a.Dir
	if dir == "" {
		cfg, err := root.LoadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Output.Directory
	}
	return RunAudit(g.out(), dir, a.JSON)
}

// RunAudit extracts the metadata of every page under dir and fails with a
// validation error when any indexable page lacks a required field.
func RunAudit(w io.Writer, dir string, asJSON bool) error {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return errors.NewError(errors.CategoryNotFound, "output directory not found (run 'sitebuilder build' first)").
			WithContext("dir", dir).
			Build()
	}
	audits, err := AuditPages(os.DirFS(dir))
	if err != nil {
		return err
	}

	failing := 0
	for _, pa := range audits {
		if len(pa.Missing) > 0 {
			failing++
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(audits); err != nil {
			return err
		}
	} else {
		printAudit(w, audits)
		_, _ = fmt.Fprintf(w, "%d pages audited, %d with missing metadata\n", len(audits), failing)
	}

	if failing > 0 {
		return errors.ValidationError("pages with missing metadata").
			WithContext("pages", failing).
			Build()
	}
	return nil
}

// AuditPages extracts metadata from every .html file in fsys. Missing
// fields are decided by the same requirements the build gates on.
func AuditPages(fsys fs.FS) ([]PageAudit, error) {
	files, err := seo.HTMLFiles(fsys)
	if err != nil {
		return nil, err
	}
	v := seo.NewValidator()
	audits := make([]PageAudit, 0, len(files))
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read page").
				WithContext("page", name).
				Build()
		}
		meta, err := seo.ExtractMeta(bytes.NewReader(data))
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryValidation, "failed to parse page").
				WithContext("page", name).
				Build()
		}
		html := string(data)
		pa := PageAudit{Page: name, Meta: meta, Noindex: seo.IsNoindex(html)}
		for _, viol := range v.Check(name, html) {
			pa.Missing = append(pa.Missing, viol.Requirement)
		}
		audits = append(audits, pa)
	}
	return audits, nil
}

func printAudit(w io.Writer, audits []PageAudit) {
	for _, pa := range audits {
		switch {
		case pa.Noindex:
			_, _ = fmt.Fprintf(w, "-  %s (noindex)\n", pa.Page)
		case len(pa.Missing) > 0:
			_, _ = fmt.Fprintf(w, "✗  %s: missing %s\n", pa.Page, strings.Join(pa.Missing, ", "))
		default:
			_, _ = fmt.Fprintf(w, "✓  %s %q\n", pa.Page, pa.Meta.Title)
		}
	}
}
