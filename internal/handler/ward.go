package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/burrow/internal/catalog"
	"github.com/dukerupert/burrow/internal/duty"
	"github.com/dukerupert/burrow/internal/model"
	"github.com/dukerupert/burrow/internal/store"
	"github.com/dukerupert/burrow/internal/websocket"
	"github.com/dukerupert/burrow/internal/wellbeing"
)

type WardHandler struct {
	wardStore *store.WardStore
	dutyStore *store.DutyStore
	wellbeing *wellbeing.Service
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewWardHandler(ws *store.WardStore, ds *store.DutyStore, wb *wellbeing.Service, hub *websocket.Hub, logger *slog.Logger) *WardHandler {
	return &WardHandler{wardStore: ws, dutyStore: ds, wellbeing: wb, hub: hub, logger: logger}
}

type wardRequest struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Species       string `json:"species"`
	AvatarEmoji   string `json:"avatar_emoji"`
	Timezone      string `json:"timezone"`
	ApplyDefaults bool   `json:"apply_defaults"`
}

func (h *WardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req wardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	kind := model.WardKind(req.Kind)
	if kind != model.WardPet && kind != model.WardSpot {
		writeError(w, http.StatusBadRequest, "kind must be pet or spot")
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := duty.ResolveZone(req.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, "unknown timezone")
		return
	}

	ward, err := h.wardStore.Create(req.Name, kind, req.Species, req.AvatarEmoji)
	if err != nil {
		h.logger.Error("create ward", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create ward")
		return
	}

	// Seed the species' default duty catalog when asked to.
	if req.ApplyDefaults {
		for _, def := range catalog.Defaults(kind, req.Species) {
			tpl, err := def.Template(ward.ID, req.Timezone)
			if err != nil {
				h.logger.Error("default duty invalid", "ward_id", ward.ID, "title", def.Title, "error", err)
				continue
			}
			if _, err := h.dutyStore.CreateTemplate(tpl); err != nil {
				h.logger.Error("seed default duty", "ward_id", ward.ID, "title", def.Title, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusCreated, ward)
}

func (h *WardHandler) List(w http.ResponseWriter, r *http.Request) {
	wards, err := h.wardStore.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list wards")
		return
	}
	if wards == nil {
		wards = []model.Ward{}
	}
	writeJSON(w, http.StatusOK, wards)
}

func (h *WardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	ward, err := h.wardStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load ward")
		return
	}
	if ward == nil {
		writeError(w, http.StatusNotFound, "ward not found")
		return
	}
	writeJSON(w, http.StatusOK, ward)
}

func (h *WardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req wardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	kind := model.WardKind(req.Kind)
	if kind != model.WardPet && kind != model.WardSpot {
		writeError(w, http.StatusBadRequest, "kind must be pet or spot")
		return
	}

	existing, err := h.wardStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load ward")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "ward not found")
		return
	}

	ward, err := h.wardStore.Update(id, req.Name, kind, req.Species, req.AvatarEmoji)
	if err != nil {
		h.logger.Error("update ward", "ward_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update ward")
		return
	}
	writeJSON(w, http.StatusOK, ward)
}

func (h *WardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.wardStore.Delete(id); err != nil {
		h.logger.Error("delete ward", "ward_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete ward")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Wellbeing serves the ward's current score, recomputing on the fly so a
// kiosk never shows a score staler than its last page load.
func (h *WardHandler) Wellbeing(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	score, err := h.wellbeing.Recompute(id)
	if err != nil {
		if errors.Is(err, duty.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ward not found")
			return
		}
		h.logger.Error("recompute wellbeing", "ward_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute wellbeing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ward_id": id, "score": score})
}

// Catalog lists the built-in duty defaults for a ward kind, keyed by species.
func (h *WardHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	kind := model.WardKind(r.PathValue("kind"))
	if kind != model.WardPet && kind != model.WardSpot {
		writeError(w, http.StatusBadRequest, "kind must be pet or spot")
		return
	}

	out := make(map[string][]catalog.Entry)
	for _, species := range catalog.Species(kind) {
		out[species] = catalog.Defaults(kind, species)
	}
	writeJSON(w, http.StatusOK, out)
}
