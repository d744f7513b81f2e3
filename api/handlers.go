package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ogsm-service/logger"
	"ogsm-service/models"
	"ogsm-service/service"
)

type ComponentHandler struct {
	log        *logger.Logger
	components *service.ComponentService
}

func NewComponentHandler(log *logger.Logger, components *service.ComponentService) *ComponentHandler {
	return &ComponentHandler{
		log:        log.With("handler", "ComponentHandler"),
		components: components,
	}
}

type createRequest struct {
	Type        string           `json:"component_type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Parent      models.ParentRef `json:"parent_id"`
	OrderIndex  int              `json:"order_index"`
	DocumentID  uuid.NullUUID    `json:"document_id"`
}

type reorderRequest struct {
	Updates []models.ReorderEntry `json:"updates"`
}

type validateRequest struct {
	ComponentID uuid.UUID        `json:"component_id"`
	Parent      models.ParentRef `json:"parent_id"`
}

type duplicateRequest struct {
	IncludeChildren bool `json:"include_children"`
}

func (h *ComponentHandler) ListComponents(c *gin.Context) {
	var filter models.ComponentFilter
	if raw := c.Query("type"); raw != "" {
		t, err := models.ParseComponentType(raw)
		if err != nil {
			respondBadRequest(c, "INVALID_COMPONENT_TYPE", err.Error())
			return
		}
		filter.Type = t
	}
	if raw := c.Query("document_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondBadRequest(c, "INVALID_ID", "document_id must be a uuid")
			return
		}
		filter.DocumentID = uuid.NullUUID{UUID: id, Valid: true}
	}

	components, err := h.components.List(c.Request.Context(), filter)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, components)
}

func (h *ComponentHandler) GetComponent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	comp, err := h.components.Get(c.Request.Context(), id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, comp)
}

func (h *ComponentHandler) ListChildren(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	children, err := h.components.Children(c.Request.Context(), id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, children)
}

func (h *ComponentHandler) CreateComponent(c *gin.Context) {
	var req createRequest
	if !bindJSON(c, &req) {
		return
	}
	comp, err := h.components.Create(c.Request.Context(), models.NewComponent{
		Type:        models.ComponentType(strings.ToLower(strings.TrimSpace(req.Type))),
		Title:       req.Title,
		Description: req.Description,
		ParentID:    req.Parent.ID,
		OrderIndex:  req.OrderIndex,
		DocumentID:  req.DocumentID,
	})
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusCreated, comp)
}

func (h *ComponentHandler) UpdateComponent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch models.ComponentPatch
	if !bindJSON(c, &patch) {
		return
	}
	comp, err := h.components.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, comp)
}

func (h *ComponentHandler) DeleteComponent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.components.Delete(c.Request.Context(), id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, gin.H{"message": "Component deleted successfully", "component": deleted})
}

func (h *ComponentHandler) GetTree(c *gin.Context) {
	nodes, err := h.components.Tree(c.Request.Context())
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, nodes)
}

func (h *ComponentHandler) DuplicateComponent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req duplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "INVALID_REQUEST", "Invalid request payload: "+err.Error())
		return
	}
	comp, err := h.components.Duplicate(c.Request.Context(), id, req.IncludeChildren)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusCreated, comp)
}

func (h *ComponentHandler) BulkReorder(c *gin.Context) {
	var req reorderRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.components.BulkReorder(c.Request.Context(), req.Updates)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, res)
}

func (h *ComponentHandler) ValidateHierarchy(c *gin.Context) {
	var req validateRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ComponentID == uuid.Nil {
		respondBadRequest(c, "MISSING_FIELD", "component_id is required")
		return
	}
	res, err := h.components.ValidateParentChild(c.Request.Context(), req.ComponentID, req.Parent.ID)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, res)
}

func (h *ComponentHandler) ApplyTemplate(c *gin.Context) {
	var tpl service.Template
	if !bindJSON(c, &tpl) {
		return
	}
	created, err := h.components.ApplyTemplate(c.Request.Context(), tpl)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusCreated, gin.H{"created_count": len(created), "components": created})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "INVALID_ID", "Invalid component ID in path")
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", "Invalid request payload: "+err.Error())
		return false
	}
	return true
}
