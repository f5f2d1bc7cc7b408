// Package seed loads lenders and their policies from YAML into a store.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/scorer"
	"github.com/sells-group/lender-match/internal/store"
)

//go:embed lenders.yaml
var defaultFile []byte

// File is the seed file layout.
type File struct {
	Lenders []model.Lender `yaml:"lenders"`
}

// Summary counts what Apply changed.
type Summary struct {
	LendersCreated    int
	PoliciesCreated   int
	PoliciesUnchanged int
}

// Store is the persistence Apply needs.
type Store interface {
	GetLenderBySlug(ctx context.Context, slug string) (*model.Lender, error)
	CreateLender(ctx context.Context, l model.Lender) (*model.Lender, error)
	ListPolicies(ctx context.Context, filter store.PolicyFilter) ([]model.PolicyRecord, error)
	CreatePolicy(ctx context.Context, p model.PolicyRecord) (*model.PolicyRecord, error)
}

// Default returns the built-in seed data.
func Default() (*File, error) {
	return Parse(defaultFile)
}

// LoadFile reads and validates a seed file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return Parse(data)
}

// Parse decodes seed YAML and validates every policy, so a bad file is
// rejected before anything is written.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "seed: parse yaml")
	}

	for i := range f.Lenders {
		l := &f.Lenders[i]
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return nil, eris.Errorf("seed: lender %d has no name", i)
		}
		if l.Slug == "" {
			l.Slug = model.Slugify(l.Name)
		}
		for _, p := range l.Policies {
			p.LenderName = l.Name
			if _, err := policy.Load(p); err != nil {
				return nil, err
			}
		}
	}
	return &f, nil
}

// Apply creates missing lenders and policies. A policy whose latest stored
// version has identical rules and scoring is left alone, whatever its
// activation; a changed one is stored as a new version that supersedes the
// previous active versions. Running Apply twice with the same file changes
// nothing the second time.
func Apply(ctx context.Context, st Store, f *File) (Summary, error) {
	var sum Summary

	for _, l := range f.Lenders {
		lender, err := st.GetLenderBySlug(ctx, l.Slug)
		switch {
		case errors.Is(err, store.ErrNotFound):
			lender, err = st.CreateLender(ctx, model.Lender{Name: l.Name, Slug: l.Slug, Type: l.Type})
			if err != nil {
				return sum, eris.Wrapf(err, "seed: create lender %s", l.Name)
			}
			sum.LendersCreated++
			zap.L().Info("seed: lender created", zap.String("lender", l.Name), zap.String("slug", l.Slug))
		case err != nil:
			return sum, eris.Wrapf(err, "seed: find lender %s", l.Slug)
		}

		existing, err := st.ListPolicies(ctx, store.PolicyFilter{LenderID: lender.ID})
		if err != nil {
			return sum, eris.Wrapf(err, "seed: list policies for %s", l.Name)
		}

		for _, p := range l.Policies {
			latest := latestVersion(existing, p.Name)
			if latest != nil && sameDefinition(*latest, p) {
				sum.PoliciesUnchanged++
				continue
			}

			p.LenderID = lender.ID
			created, err := st.CreatePolicy(ctx, p)
			if err != nil {
				return sum, eris.Wrapf(err, "seed: create policy %s/%s", l.Name, p.Name)
			}
			sum.PoliciesCreated++
			zap.L().Info("seed: policy stored",
				zap.String("lender", l.Name),
				zap.String("policy", created.Name),
				zap.Int("version", created.Version),
			)
		}
	}

	return sum, nil
}

func latestVersion(recs []model.PolicyRecord, name string) *model.PolicyRecord {
	var latest *model.PolicyRecord
	for i := range recs {
		if recs[i].Name == name && (latest == nil || recs[i].Version > latest.Version) {
			latest = &recs[i]
		}
	}
	return latest
}

func sameDefinition(a, b model.PolicyRecord) bool {
	type def struct {
		Rules   []model.RuleDefinition
		Scoring model.ScoringDefinition
	}
	norm := func(r model.PolicyRecord) def {
		if r.Rules == nil {
			r.Rules = []model.RuleDefinition{}
		}
		return def{r.Rules, r.Scoring}
	}
	return scorer.ConfigHash(norm(a)) == scorer.ConfigHash(norm(b))
}
