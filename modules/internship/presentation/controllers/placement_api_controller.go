package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/fit-portal/placement/modules/internship/domain/assignment"
	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/decision"
	"github.com/fit-portal/placement/modules/internship/domain/period"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/modules/internship/presentation/controllers/dtos"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/application"
	"github.com/fit-portal/placement/pkg/composables"
	"github.com/fit-portal/placement/pkg/httpapi"
	"github.com/fit-portal/placement/pkg/middleware"
)

const (
	codeInvalidQuery    = "INTERNSHIP_INVALID_QUERY"
	codeUnauthenticated = "INTERNSHIP_UNAUTHENTICATED"
)

type PlacementAPIController struct {
	app         application.Application
	periods     *services.PeriodService
	capacity    *services.CapacityService
	assignments *services.AssignmentService
	preferences *services.PreferenceService
	decisions   *services.DecisionService
	queue       *services.ReviewQueueService
	actorHeader string
	apiPrefix   string
}

func NewPlacementAPIController(app application.Application, actorHeader string) application.Controller {
	return &PlacementAPIController{
		app:         app,
		periods:     app.Service(services.PeriodService{}).(*services.PeriodService),
		capacity:    app.Service(services.CapacityService{}).(*services.CapacityService),
		assignments: app.Service(services.AssignmentService{}).(*services.AssignmentService),
		preferences: app.Service(services.PreferenceService{}).(*services.PreferenceService),
		decisions:   app.Service(services.DecisionService{}).(*services.DecisionService),
		queue:       app.Service(services.ReviewQueueService{}).(*services.ReviewQueueService),
		actorHeader: actorHeader,
		apiPrefix:   "/internship/api",
	}
}

func (c *PlacementAPIController) Key() string {
	return c.apiPrefix
}

func (c *PlacementAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.Use(
		middleware.WithActor(c.actorHeader),
	)

	api.HandleFunc("/periods", c.DefinePeriod).Methods(http.MethodPost)
	api.HandleFunc("/periods", c.ListPeriods).Methods(http.MethodGet)
	api.HandleFunc("/periods/current", c.CurrentPeriod).Methods(http.MethodGet)
	api.HandleFunc("/periods/{id}", c.GetPeriod).Methods(http.MethodGet)
	api.HandleFunc("/periods/{id}:open", c.OpenPeriod).Methods(http.MethodPost)
	api.HandleFunc("/periods/{id}:close", c.ClosePeriod).Methods(http.MethodPost)

	api.HandleFunc("/periods/{id}/capacity", c.Enroll).Methods(http.MethodPost)
	api.HandleFunc("/periods/{id}/capacity", c.ListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/periods/{id}/capacity/{kind}/{subject}", c.GetAccount).Methods(http.MethodGet)
	api.HandleFunc("/periods/{id}/capacity/{kind}/{subject}", c.UpdateAccount).Methods(http.MethodPatch)
	api.HandleFunc("/periods/{id}/capacity/{kind}/{subject}:admit", c.Admit).Methods(http.MethodPost)
	api.HandleFunc("/periods/{id}/capacity/{kind}/{subject}:release", c.Release).Methods(http.MethodPost)

	api.HandleFunc("/periods/{id}/students/{student}/assignment", c.Assign).Methods(http.MethodPut)
	api.HandleFunc("/periods/{id}/students/{student}/assignment", c.GetAssignment).Methods(http.MethodGet)
	api.HandleFunc("/periods/{id}/students/{student}/preferences", c.SubmitPreferences).Methods(http.MethodPost)
	api.HandleFunc("/periods/{id}/students/{student}/preferences", c.ListPreferences).Methods(http.MethodGet)
	api.HandleFunc("/periods/{id}/students/{student}/outcome", c.GetOutcome).Methods(http.MethodGet)
	api.HandleFunc("/periods/{id}/students/{student}:academy", c.ApproveToAcademy).Methods(http.MethodPost)

	api.HandleFunc("/preferences/{id}:approve", c.Approve).Methods(http.MethodPost)
	api.HandleFunc("/preferences/{id}:reject", c.Reject).Methods(http.MethodPost)

	api.HandleFunc("/periods/{id}/queue", c.GetQueue).Methods(http.MethodGet)
}

type periodResponse struct {
	period.Period
	IsOpen bool `json:"is_open"`
}

func (c *PlacementAPIController) DefinePeriod(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	var dto dtos.DefinePeriodDTO
	if !decodeAndValidate(w, r, requestID, &dto) {
		return
	}
	p, err := c.periods.Define(r.Context(), services.DefinePeriodInput{
		Name:     dto.Name,
		Label:    dto.Label,
		OpensAt:  dto.OpensAt,
		ClosesAt: dto.ClosesAt,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, c.withOpen(p))
}

func (c *PlacementAPIController) ListPeriods(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	list, err := c.periods.List(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, c.withOpen(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *PlacementAPIController) CurrentPeriod(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	p, err := c.periods.Current(r.Context(), c.periods.Now())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, c.withOpen(p))
}

func (c *PlacementAPIController) GetPeriod(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	p, err := c.periods.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, c.withOpen(p))
}

func (c *PlacementAPIController) OpenPeriod(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	p, err := c.periods.Open(r.Context(), id, c.periods.Now())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, c.withOpen(p))
}

func (c *PlacementAPIController) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	p, err := c.periods.Close(r.Context(), id, c.periods.Now())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, c.withOpen(p))
}

func (c *PlacementAPIController) withOpen(p period.Period) periodResponse {
	return periodResponse{Period: p, IsOpen: p.IsOpen(c.periods.Now())}
}

func (c *PlacementAPIController) Enroll(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	periodID, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	var dto dtos.EnrollDTO
	if !decodeAndValidate(w, r, requestID, &dto) {
		return
	}
	kind, _ := capacity.ParseSubjectKind(dto.Kind)
	acc, err := c.capacity.Enroll(r.Context(), capacity.NewKey(periodID, kind, dto.SubjectID), *dto.MaxSlots)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (c *PlacementAPIController) ListAccounts(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	periodID, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	var kind *capacity.SubjectKind
	if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
		k, ok := capacity.ParseSubjectKind(raw)
		if !ok {
			writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "kind is invalid")
			return
		}
		kind = &k
	}
	list, err := c.capacity.List(r.Context(), periodID, kind)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if list == nil {
		list = []capacity.Account{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (c *PlacementAPIController) GetAccount(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	key, ok := pathKey(w, r, requestID)
	if !ok {
		return
	}
	acc, err := c.capacity.CurrentUsage(r.Context(), key)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// UpdateAccount applies max_slots before accepting so a shrink that fails
// leaves the flag untouched.
func (c *PlacementAPIController) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	key, ok := pathKey(w, r, requestID)
	if !ok {
		return
	}
	var dto dtos.UpdateAccountDTO
	if !decodeAndValidate(w, r, requestID, &dto) {
		return
	}
	if dto.Empty() {
		writeAPIError(w, http.StatusBadRequest, requestID, services.ErrInvalidBody.Code, "max_slots or accepting is required")
		return
	}
	var (
		acc capacity.Account
		err error
	)
	if dto.MaxSlots != nil {
		if acc, err = c.capacity.Resize(r.Context(), key, *dto.MaxSlots); err != nil {
			writeServiceError(w, requestID, err)
			return
		}
	}
	if dto.Accepting != nil {
		if acc, err = c.capacity.SetAccepting(r.Context(), key, *dto.Accepting); err != nil {
			writeServiceError(w, requestID, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, acc)
}

func (c *PlacementAPIController) Admit(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	key, ok := pathKey(w, r, requestID)
	if !ok {
		return
	}
	acc, err := c.capacity.Admit(r.Context(), key)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (c *PlacementAPIController) Release(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	key, ok := pathKey(w, r, requestID)
	if !ok {
		return
	}
	acc, err := c.capacity.Release(r.Context(), key)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (c *PlacementAPIController) Assign(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	periodID, studentID, ok := pathStudent(w, r, requestID)
	if !ok {
		return
	}
	var dto dtos.AssignDTO
	if !decodeAndValidate(w, r, requestID, &dto) {
		return
	}
	a, err := c.assignments.Assign(r.Context(), studentID, periodID, dto.StaffID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (c *PlacementAPIController) GetAssignment(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	periodID, studentID, ok := pathStudent(w, r, requestID)
	if !ok {
		return
	}
	history, err := queryBool(r, "history")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "history is invalid")
		return
	}
	if history != nil && *history {
		list, err := c.assignments.History(r.Context(), studentID, periodID)
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		if list == nil {
			list = []assignment.Assignment{}
		}
		writeJSON(w, http.StatusOK, list)
		return
	}
	cur, err := c.assignments.Current(r.Context(), studentID, periodID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if cur == nil {
		writeServiceError(w, requestID, services.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (c *PlacementAPIController) SubmitPreferences(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	periodID, studentID, ok := pathStudent(w, r, requestID)
	if !ok {
		return
	}
	var dto dtos.SubmitPreferencesDTO
	if !decodeAndValidate(w, r, requestID, &dto) {
		return
	}
	choices, ok := dto.ToChoices()
	if !ok {
		writeAPIError(w, http.StatusBadRequest, requestID, services.ErrInvalidBody.Code, "exactly one of choices or organization_ids is required")
		return
	}
	prefs, err := c.preferences.Submit(r.Context(), studentID, periodID, choices, dto.Note)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, prefs)
}

func (c *PlacementAPIController) ListPreferences(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	periodID, studentID, ok := pathStudent(w, r, requestID)
	if !ok {
		return
	}
	prefs, err := c.preferences.ListFor(r.Context(), studentID, periodID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if prefs == nil {
		prefs = []preference.Preference{}
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (c *PlacementAPIController) GetOutcome(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	periodID, studentID, ok := pathStudent(w, r, requestID)
	if !ok {
		return
	}
	outcome, err := c.decisions.Outcome(r.Context(), studentID, periodID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	journal, err := c.decisions.Journal(r.Context(), studentID, periodID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if journal == nil {
		journal = []decision.Entry{}
	}

	type outcomeResponse struct {
		services.Outcome
		Journal []decision.Entry `json:"journal"`
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcome, Journal: journal})
}

func (c *PlacementAPIController) Approve(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	reviewerID, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	preferenceID, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	res, err := c.decisions.Approve(r.Context(), preferenceID, reviewerID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PlacementAPIController) Reject(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	reviewerID, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	preferenceID, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	var dto dtos.RejectDTO
	if r.ContentLength != 0 {
		if !decodeAndValidate(w, r, requestID, &dto) {
			return
		}
	}
	res, err := c.decisions.Reject(r.Context(), preferenceID, reviewerID, dto.Reason)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PlacementAPIController) ApproveToAcademy(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	reviewerID, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	periodID, studentID, ok := pathStudent(w, r, requestID)
	if !ok {
		return
	}
	res, err := c.decisions.ApproveToAcademy(r.Context(), studentID, periodID, reviewerID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PlacementAPIController) GetQueue(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	periodID, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	filter, field, err := parseQueueFilter(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, field+" is invalid")
		return
	}
	entries, err := c.queue.Rank(r.Context(), periodID, filter)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if entries == nil {
		entries = []services.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseQueueFilter(r *http.Request) (services.QueueFilter, string, error) {
	q := r.URL.Query()
	filter := services.QueueFilter{
		Outcome: strings.TrimSpace(q.Get("outcome")),
		Name:    q.Get("name"),
	}

	if raw := strings.TrimSpace(q.Get("organization_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, "organization_id", err
		}
		filter.OrganizationID = &id
	}
	hasNote, err := queryBool(r, "has_note")
	if err != nil {
		return filter, "has_note", err
	}
	filter.HasNote = hasNote
	if raw := strings.TrimSpace(q.Get("min_gpa")); raw != "" {
		minGPA, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, "min_gpa", err
		}
		filter.MinGPA = &minGPA
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		return filter, "limit", err
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		return filter, "offset", err
	}
	return filter, "", nil
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, requestID string, dto any) bool {
	if err := decodeJSON(r.Body, dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.ErrInvalidBody.Code, "invalid json body")
		return false
	}
	if errs, ok := dtos.Ok(dto); !ok {
		writeAPIErrorMeta(w, http.StatusBadRequest, requestID, services.ErrInvalidBody.Code, "invalid request body", errs)
		return false
	}
	return true
}

func requireActor(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	actorID, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, codeUnauthenticated, "reviewer identity is required")
		return uuid.Nil, false
	}
	return actorID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, requestID, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, name+" is invalid")
		return uuid.Nil, false
	}
	return id, true
}

func pathStudent(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, uuid.UUID, bool) {
	periodID, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	studentID, ok := pathUUID(w, r, requestID, "student")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return periodID, studentID, true
}

func pathKey(w http.ResponseWriter, r *http.Request, requestID string) (capacity.Key, bool) {
	periodID, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return capacity.Key{}, false
	}
	kind, ok := capacity.ParseSubjectKind(mux.Vars(r)["kind"])
	if !ok {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "kind is invalid")
		return capacity.Key{}, false
	}
	subjectID, ok := pathUUID(w, r, requestID, "subject")
	if !ok {
		return capacity.Key{}, false
	}
	return capacity.NewKey(periodID, kind, subjectID), true
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.New("negative")
	}
	return v, nil
}

func ensureRequestID(r *http.Request) string {
	if v := composables.UseRequestID(r.Context()); v != "" {
		return v
	}
	return uuid.NewString()
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, services.ErrInternal.Code, services.ErrInternal.Message)
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	writeAPIErrorMeta(w, status, requestID, code, message, nil)
}

func writeAPIErrorMeta(w http.ResponseWriter, status int, requestID, code, message string, meta map[string]string) {
	if meta == nil {
		meta = map[string]string{}
	}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	_ = httpapi.WriteJSON(w, status, payload)
}
