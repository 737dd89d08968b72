package seo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Violation is one missing requirement on one page.
type Violation struct {
	Page        string `json:"page"`
	Requirement string `json:"requirement"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: missing %s", v.Page, v.Requirement)
}

// ViolationsError lists every violation found in a validation pass.
type ViolationsError struct {
	Violations []Violation
}

func (e *ViolationsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d SEO issue(s) found:", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  ")
		b.WriteString(v.String())
	}
	return b.String()
}

// Pages returns the distinct pages with violations, in report order.
func (e *ViolationsError) Pages() []string {
	var pages []string
	seen := map[string]bool{}
	for _, v := range e.Violations {
		if !seen[v.Page] {
			seen[v.Page] = true
			pages = append(pages, v.Page)
		}
	}
	return pages
}

// Result summarises a validation pass.
type Result struct {
	Total      int         `json:"total"`   // HTML files found
	Checked    int         `json:"checked"` // Files validated
	Noindex    []string    `json:"noindex,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

// Validator checks built pages against a set of requirements.
type Validator struct {
	reqs []Requirement
}

// NewValidator returns a Validator for reqs, or DefaultRequirements when none are given.
func NewValidator(reqs ...Requirement) *Validator {
	if len(reqs) == 0 {
		reqs = DefaultRequirements()
	}
	return &Validator{reqs: reqs}
}

// Requirements returns the requirement names in check order.
func (v *Validator) Requirements() []string {
	names := make([]string, len(v.reqs))
	for i, r := range v.reqs {
		names[i] = r.Name
	}
	return names
}

// Check returns the violations for a single page.
func (v *Validator) Check(page, html string) []Violation {
	if IsNoindex(html) {
		return nil
	}
	var out []Violation
	for _, r := range v.reqs {
		if !r.Present(html) {
			out = append(out, Violation{Page: page, Requirement: r.Name})
		}
	}
	return out
}

// Validate checks every .html file under fsys. Violations are grouped by
// page (sorted by path) and returned together as a *ViolationsError.
func (v *Validator) Validate(ctx context.Context, fsys fs.FS) (Result, error) {
	files, err := HTMLFiles(fsys)
	if err != nil {
		return Result{}, err
	}

	res := Result{Total: len(files)}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return res, errors.WrapError(err, errors.CategoryFileSystem, "failed to read page").
				WithContext("page", name).
				Fatal().
				Build()
		}
		html := string(data)
		if IsNoindex(html) {
			res.Noindex = append(res.Noindex, name)
			slog.Debug("Skipping noindex page", logfields.Page(name))
			continue
		}
		res.Checked++
		res.Violations = append(res.Violations, v.Check(name, html)...)
	}

	if len(res.Violations) > 0 {
		return res, &ViolationsError{Violations: res.Violations}
	}
	slog.Info("All pages passed SEO checks", logfields.Count(res.Checked), "noindex", len(res.Noindex))
	return res, nil
}

// HTMLFiles lists every .html file under fsys, sorted.
func HTMLFiles(fsys fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".html" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to list built pages").
			Fatal().
			Build()
	}
	sort.Strings(files)
	return files, nil
}
