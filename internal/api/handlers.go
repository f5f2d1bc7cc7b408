package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/lender-match/internal/matching"
	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Applications

type createApplicationRequest struct {
	BusinessName    string  `json:"business_name"`
	AmountRequested float64 `json:"amount_requested"`
	EquipmentType   string  `json:"equipment_type"`
	FICOScore       int     `json:"fico_score"`
	YearsInBusiness float64 `json:"years_in_business"`
	AnnualRevenue   float64 `json:"annual_revenue"`
	PaynetScore     *int    `json:"paynet_score"`
	City            string  `json:"city"`
	State           string  `json:"state"`
	ZipCode         string  `json:"zip_code"`
}

func (req createApplicationRequest) application() model.Application {
	return model.Application{
		BusinessName:    strings.TrimSpace(req.BusinessName),
		AmountRequested: req.AmountRequested,
		EquipmentType:   req.EquipmentType,
		FICOScore:       req.FICOScore,
		YearsInBusiness: req.YearsInBusiness,
		AnnualRevenue:   req.AnnualRevenue,
		PaynetScore:     req.PaynetScore,
		City:            strings.TrimSpace(req.City),
		State:           model.NormalizeState(req.State),
		ZipCode:         strings.TrimSpace(req.ZipCode),
	}
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if !decode(w, r, &req) {
		return
	}
	app := req.application()

	// Intake applies the same invariants the engine relies on, so a stored
	// application can always be matched.
	if err := validateApplication(app); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if equipment, err := model.ParseEquipmentType(app.EquipmentType); err == nil {
		app.EquipmentType = string(equipment)
	}

	created, err := s.store.CreateApplication(r.Context(), app)
	if err != nil {
		writeDomainError(w, r, err, "application")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func validateApplication(app model.Application) error {
	if app.BusinessName == "" {
		return errors.New("business_name is required")
	}
	// The id is assigned by the store; validate the rest.
	app.ID = "new"
	var snapErr *matching.InvalidSnapshotError
	if _, err := matching.NewSnapshot(app); errors.As(err, &snapErr) {
		return errors.New(strings.Join(snapErr.Violations, "; "))
	}
	return nil
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ApplicationFilter{Status: model.ApplicationStatus(q.Get("status"))}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	apps, err := s.store.ListApplications(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err, "application")
		return
	}
	if apps == nil {
		apps = []model.Application{}
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.store.GetApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "application")
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// handleGetMatches evaluates the application against every active policy.
// The response is the full ordered result list or an error, never a part.
func (s *Server) handleGetMatches(w http.ResponseWriter, r *http.Request) {
	run, err := s.matcher.Match(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "application")
		return
	}
	writeJSON(w, http.StatusOK, run.Results)
}

func (s *Server) handleGetLatestMatchRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetLatestMatchRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "match run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Lenders and policies

type createLenderRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Type string `json:"type"`
}

func (s *Server) handleListLenders(w http.ResponseWriter, r *http.Request) {
	lenders, err := s.store.ListLenders(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "lender")
		return
	}
	if lenders == nil {
		lenders = []model.Lender{}
	}
	writeJSON(w, http.StatusOK, lenders)
}

func (s *Server) handleCreateLender(w http.ResponseWriter, r *http.Request) {
	var req createLenderRequest
	if !decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	slug := req.Slug
	if slug == "" {
		slug = model.Slugify(name)
	}

	if _, err := s.store.GetLenderBySlug(r.Context(), slug); err == nil {
		writeError(w, http.StatusConflict, "lender "+slug+" already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeDomainError(w, r, err, "lender")
		return
	}

	// A concurrent create can still win the slug between the check and the insert.
	created, err := s.store.CreateLender(r.Context(), model.Lender{Name: name, Slug: slug, Type: req.Type})
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, "lender "+slug+" already exists")
		return
	}
	if err != nil {
		writeDomainError(w, r, err, "lender")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetLender(r.Context(), id); err != nil {
		writeDomainError(w, r, err, "lender")
		return
	}
	policies, err := s.store.ListPolicies(r.Context(), store.PolicyFilter{LenderID: id})
	if err != nil {
		writeDomainError(w, r, err, "policy")
		return
	}
	if policies == nil {
		policies = []model.PolicyRecord{}
	}
	writeJSON(w, http.StatusOK, policies)
}

type createPolicyRequest struct {
	Name    string                  `json:"name"`
	Active  bool                    `json:"active"`
	Rules   []model.RuleDefinition  `json:"rules"`
	Scoring model.ScoringDefinition `json:"scoring"`
}

// handleCreatePolicy stores a new policy version. The definition must load
// cleanly; malformed policies are rejected here and never reach matching.
func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if !decode(w, r, &req) {
		return
	}

	lender, err := s.store.GetLender(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "lender")
		return
	}

	rec := model.PolicyRecord{
		LenderID:   lender.ID,
		LenderName: lender.Name,
		Name:       strings.TrimSpace(req.Name),
		Active:     req.Active,
		Rules:      req.Rules,
		Scoring:    req.Scoring,
	}
	if rec.Rules == nil {
		rec.Rules = []model.RuleDefinition{}
	}
	if _, err := policy.Load(rec); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.store.CreatePolicy(r.Context(), rec)
	if err != nil {
		writeDomainError(w, r, err, "lender")
		return
	}
	zap.L().Info("api: policy created",
		zap.String("lender", lender.Name),
		zap.String("policy", created.Name),
		zap.Int("version", created.Version),
		zap.Bool("active", created.Active),
	)
	writeJSON(w, http.StatusCreated, created)
}

type updatePolicyRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req updatePolicyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.SetPolicyActive(r.Context(), id, *req.Active); err != nil {
		writeDomainError(w, r, err, "policy")
		return
	}
	rec, err := s.store.GetPolicy(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err, "policy")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
