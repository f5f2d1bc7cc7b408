package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/ocr"
	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/store"
)

// Store is the persistence the ingester needs.
type Store interface {
	GetLenderBySlug(ctx context.Context, slug string) (*model.Lender, error)
	CreateLender(ctx context.Context, l model.Lender) (*model.Lender, error)
	CreatePolicy(ctx context.Context, p model.PolicyRecord) (*model.PolicyRecord, error)
}

// Request describes one document to ingest.
type Request struct {
	Path       string
	LenderName string
	// PolicyName defaults to the document file name without extension.
	PolicyName string
	LenderType string
	// Active makes the policy take part in matching immediately, retiring
	// the current active version of the same name. Ingested
	// policies are otherwise stored inactive for review.
	Active bool
}

// Ingester extracts, parses, validates and stores policy documents.
type Ingester struct {
	extractor ocr.Extractor
	parser    Parser
	store     Store
}

// New creates an Ingester.
func New(extractor ocr.Extractor, parser Parser, st Store) *Ingester {
	return &Ingester{extractor: extractor, parser: parser, store: st}
}

// Ingest runs the full pipeline for one document and returns the stored
// policy. Rules that fail validation abort the ingest with a
// *policy.ConfigurationError; nothing is stored in that case.
func (i *Ingester) Ingest(ctx context.Context, req Request) (*model.PolicyRecord, error) {
	lenderName := strings.TrimSpace(req.LenderName)
	if lenderName == "" {
		return nil, eris.New("ingest: lender name is required")
	}
	policyName := strings.TrimSpace(req.PolicyName)
	if policyName == "" {
		policyName = strings.TrimSuffix(filepath.Base(req.Path), filepath.Ext(req.Path))
	}

	log := zap.L().With(
		zap.String("path", req.Path),
		zap.String("lender", lenderName),
		zap.String("parser", i.parser.Name()),
	)

	text, err := i.extractor.ExtractText(ctx, req.Path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: extract text")
	}

	rules, err := i.parser.Parse(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, eris.Errorf("ingest: no rules found in %s", req.Path)
	}

	rec := model.PolicyRecord{
		LenderName: lenderName,
		Name:       policyName,
		Active:     req.Active,
		Rules:      rules,
	}
	if _, err := policy.Load(rec); err != nil {
		return nil, err
	}

	lender, err := i.lender(ctx, lenderName, req.LenderType)
	if err != nil {
		return nil, err
	}
	rec.LenderID = lender.ID

	created, err := i.store.CreatePolicy(ctx, rec)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: store policy")
	}

	log.Info("ingest: policy stored",
		zap.String("policy", created.Name),
		zap.Int("version", created.Version),
		zap.Int("rules", len(created.Rules)),
		zap.Bool("active", created.Active),
	)
	return created, nil
}

// lender finds the lender by slug, creating it on first ingest.
func (i *Ingester) lender(ctx context.Context, name, lenderType string) (*model.Lender, error) {
	slug := model.Slugify(name)
	l, err := i.store.GetLenderBySlug(ctx, slug)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "ingest: find lender")
	}
	if lenderType == "" {
		lenderType = "Lender"
	}
	l, err = i.store.CreateLender(ctx, model.Lender{Name: name, Slug: slug, Type: lenderType})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create lender")
	}
	return l, nil
}
