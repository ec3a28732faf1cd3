package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/burrow/internal/duty"
	"github.com/dukerupert/burrow/internal/store"
	"github.com/dukerupert/burrow/internal/websocket"
	"github.com/dukerupert/burrow/internal/wellbeing"
)

type DutyHandler struct {
	dutyStore   *store.DutyStore
	wardStore   *store.WardStore
	memberStore *store.FamilyMemberStore
	wellbeing   *wellbeing.Service
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewDutyHandler(ds *store.DutyStore, ws *store.WardStore, ms *store.FamilyMemberStore, wb *wellbeing.Service, hub *websocket.Hub, logger *slog.Logger) *DutyHandler {
	return &DutyHandler{dutyStore: ds, wardStore: ws, memberStore: ms, wellbeing: wb, hub: hub, logger: logger}
}

func (h *DutyHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// --- Templates ---

type templateRequest struct {
	WardID      int64  `json:"ward_id"`
	Title       string `json:"title"`
	Rule        string `json:"rule"`
	Timezone    string `json:"timezone"`
	GraceHours  int    `json:"grace_hours"`
	PointWeight int    `json:"point_weight"`
}

// templateResponse flattens engine fields that don't serialize cleanly.
type templateResponse struct {
	duty.Template
	Rule       string `json:"rule"`
	RuleText   string `json:"rule_text"`
	GraceHours int    `json:"grace_hours"`
}

func toTemplateResponse(t duty.Template) templateResponse {
	return templateResponse{
		Template:   t,
		Rule:       t.Rule.String(),
		RuleText:   t.Rule.Describe(),
		GraceHours: int(t.Grace / time.Hour),
	}
}

func (h *DutyHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	ward, err := h.wardStore.GetByID(req.WardID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check ward")
		return
	}
	if ward == nil {
		writeError(w, http.StatusBadRequest, "ward not found")
		return
	}

	rule, err := duty.Parse(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
		return
	}

	tpl, err := duty.NewTemplate(req.WardID, req.Title, rule, req.Timezone, time.Duration(req.GraceHours)*time.Hour, req.PointWeight)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.dutyStore.CreateTemplate(tpl)
	if err != nil {
		h.logger.Error("create template", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create duty")
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(*saved))
}

func (h *DutyHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	var (
		templates []duty.Template
		err       error
	)
	if wardID := r.URL.Query().Get("ward_id"); wardID != "" {
		id, parseErr := parseInt64(wardID)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid ward_id")
			return
		}
		templates, err = h.dutyStore.ListTemplatesByWard(id)
	} else {
		templates, err = h.dutyStore.ListTemplates()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list duties")
		return
	}

	resp := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		resp = append(resp, toTemplateResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DutyHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.dutyStore.GetTemplate(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load duty")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "duty not found")
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	rule, err := duty.Parse(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
		return
	}

	// Revalidate through the constructor; the store never persists an
	// unvalidated template.
	tpl, err := duty.NewTemplate(existing.WardID, req.Title, rule, req.Timezone, time.Duration(req.GraceHours)*time.Hour, req.PointWeight)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tpl.ID = existing.ID
	tpl.Active = existing.Active

	saved, err := h.dutyStore.UpdateTemplate(tpl)
	if err != nil {
		h.logger.Error("update template", "template_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update duty")
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(*saved))
}

func (h *DutyHandler) SetTemplateActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.dutyStore.SetTemplateActive(id, req.Active); err != nil {
		h.logger.Error("set template active", "template_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update duty")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (h *DutyHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.dutyStore.DeleteTemplate(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- Instances ---

func (h *DutyHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	var (
		instances []duty.Instance
		err       error
	)
	if wardID := r.URL.Query().Get("ward_id"); wardID != "" {
		id, parseErr := parseInt64(wardID)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid ward_id")
			return
		}
		instances, err = h.dutyStore.ListInstancesByWard(id)
	} else {
		instances, err = h.dutyStore.ListOpenInstances()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list duty instances")
		return
	}
	if instances == nil {
		instances = []duty.Instance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

type oneOffRequest struct {
	WardID      int64     `json:"ward_id"`
	TemplateID  *int64    `json:"template_id"`
	Title       string    `json:"title"`
	PointWeight int       `json:"point_weight"`
	DueAt       time.Time `json:"due_at"`
}

// CreateInstance makes an ad-hoc instance. With a template_id it is the
// manual firing path for FREQ=MANUAL duties and still honors the
// one-open-instance rule.
func (h *DutyHandler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var req oneOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	ward, err := h.wardStore.GetByID(req.WardID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check ward")
		return
	}
	if ward == nil {
		writeError(w, http.StatusBadRequest, "ward not found")
		return
	}

	inst, err := duty.NewOneOff(req.WardID, req.Title, req.PointWeight, req.DueAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TemplateID != nil {
		tpl, err := h.dutyStore.GetTemplate(*req.TemplateID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check duty")
			return
		}
		if tpl == nil || tpl.WardID != req.WardID {
			writeError(w, http.StatusBadRequest, "duty not found for ward")
			return
		}
		inst.TemplateID = req.TemplateID
	}

	saved, err := h.dutyStore.InsertInstance(inst)
	if errors.Is(err, duty.ErrOpenInstance) {
		writeError(w, http.StatusConflict, "an open instance already exists for this duty")
		return
	}
	if err != nil {
		h.logger.Error("create instance", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create duty instance")
		return
	}

	h.broadcast(websocket.EventMessage(duty.CreatedEvent(*saved)))
	h.recompute(saved.WardID)
	writeJSON(w, http.StatusCreated, saved)
}

type transitionRequest struct {
	MemberID int64 `json:"member_id"`
}

func (h *DutyHandler) loadInstance(w http.ResponseWriter, r *http.Request) *duty.Instance {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	inst, err := h.dutyStore.GetInstance(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load duty instance")
		return nil
	}
	if inst == nil {
		writeError(w, http.StatusNotFound, "duty instance not found")
		return nil
	}
	return inst
}

func (h *DutyHandler) memberExists(w http.ResponseWriter, memberID int64) bool {
	member, err := h.memberStore.GetByID(memberID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check family member")
		return false
	}
	if member == nil {
		writeError(w, http.StatusBadRequest, "family member not found")
		return false
	}
	return true
}

func (h *DutyHandler) StartInstance(w http.ResponseWriter, r *http.Request) {
	inst := h.loadInstance(w, r)
	if inst == nil {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !h.memberExists(w, req.MemberID) {
		return
	}

	// Idempotent: starting an already claimed or completed instance just
	// echoes the current state back.
	if inst.Start(req.MemberID) {
		var err error
		inst, err = h.dutyStore.SaveInstance(*inst)
		if err != nil {
			h.logger.Error("save started instance", "instance_id", inst.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to start duty")
			return
		}
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *DutyHandler) ReleaseInstance(w http.ResponseWriter, r *http.Request) {
	inst := h.loadInstance(w, r)
	if inst == nil {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Only whoever started it may put it back. This is the one
	// authorization rule the duty lifecycle carries.
	if inst.StartedBy != nil && *inst.StartedBy != req.MemberID {
		writeError(w, http.StatusForbidden, "only the member who started this duty may release it")
		return
	}

	if inst.Release() {
		var err error
		inst, err = h.dutyStore.SaveInstance(*inst)
		if err != nil {
			h.logger.Error("save released instance", "instance_id", inst.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to release duty")
			return
		}
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *DutyHandler) CompleteInstance(w http.ResponseWriter, r *http.Request) {
	inst := h.loadInstance(w, r)
	if inst == nil {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !h.memberExists(w, req.MemberID) {
		return
	}

	if inst.Complete(req.MemberID, time.Now().UTC()) {
		var err error
		inst, err = h.dutyStore.SaveInstance(*inst)
		if err != nil {
			h.logger.Error("save completed instance", "instance_id", inst.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to complete duty")
			return
		}

		// Late completions still earn half their points.
		points := inst.PointWeight
		if inst.CompletedLate() {
			points = (points + 1) / 2
		}
		if err := h.memberStore.AddPoints(req.MemberID, points); err != nil {
			h.logger.Error("award points", "member_id", req.MemberID, "error", err)
		}

		h.broadcast(websocket.EventMessage(duty.CompletedEvent(*inst)))
		h.recompute(inst.WardID)
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *DutyHandler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	inst := h.loadInstance(w, r)
	if inst == nil {
		return
	}
	if err := h.dutyStore.DeleteInstance(inst.ID); err != nil {
		h.logger.Error("delete instance", "instance_id", inst.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete duty instance")
		return
	}
	h.recompute(inst.WardID)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *DutyHandler) recompute(wardID int64) {
	score, err := h.wellbeing.Recompute(wardID)
	if err != nil {
		h.logger.Error("recompute wellbeing", "ward_id", wardID, "error", err)
		return
	}
	h.broadcast(websocket.ScoreMessage(wardID, score))
}
